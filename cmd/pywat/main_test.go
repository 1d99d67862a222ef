package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := runCLI(append([]string{"pywat", "-C", t.TempDir()}, args...), &out)
	return out.String(), err
}

func TestRunCLIHelp(t *testing.T) {
	if _, err := run(t, "help"); err != nil {
		t.Fatalf("runCLI help failed: %v", err)
	}
}

func TestRunCLIInvalidCommand(t *testing.T) {
	for _, args := range [][]string{{"pywat"}, {"pywat", "unknown"}, {"pywat", "-bogus", "run"}} {
		err := runCLI(args, new(bytes.Buffer))
		if err == nil || !strings.Contains(err.Error(), "invalid command") {
			t.Errorf("runCLI(%v) = %v, want invalid command", args, err)
		}
	}
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.py", "x:int = 5\nx = x + 1\nprint(x)\n")

	out, err := run(t, "compile", src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "(module") || !strings.Contains(out, "exported_func") {
		t.Errorf("unexpected WAT:\n%s", out)
	}

	wat := filepath.Join(dir, "a.wat")
	if _, err := run(t, "compile", "-o", wat, "-comments", src); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(wat)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ";; line 2") {
		t.Errorf("comments missing from written WAT")
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "good.py", "def f(x:int, y:int)->bool:\n  return x <= y\nf(3, 5)\n")
	bad := writeSource(t, dir, "bad.py", "x:int = 1\nx = True\n")

	out, err := run(t, "check", good)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "result type bool") {
		t.Errorf("check output = %q", out)
	}

	_, err = run(t, "check", bad)
	if err == nil {
		t.Fatal("expected a type error")
	}
	if !strings.Contains(err.Error(), "TYPE ERROR at 2:5") || !strings.Contains(err.Error(), "^") {
		t.Errorf("error has no caret snippet:\n%v", err)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.py", "class C(object):\n    n:int = 20\nc:C = None\nprint(c.n)\nc.n + 1\n")

	out, err := run(t, "run", src)
	if err != nil {
		t.Fatal(err)
	}
	if out != "20\n" {
		t.Errorf("run output = %q", out)
	}

	out, err = run(t, "run", "-echo", src)
	if err != nil {
		t.Fatal(err)
	}
	if out != "20\n21\n" {
		t.Errorf("run -echo output = %q", out)
	}

	trap := writeSource(t, dir, "trap.py", "print(1)\n1 // 0\n")
	out, err = run(t, "run", trap)
	if err == nil || !strings.Contains(err.Error(), "divide by zero") {
		t.Errorf("trap error = %v", err)
	}
	if out != "1\n" {
		t.Errorf("output before trap = %q", out)
	}
}

func TestManifestEntryAndPages(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.py", "print(True)\n")
	writeSource(t, dir, "pywat.toml", "[project]\nname = \"demo\"\n[source]\nentry = \"main.py\"\n[compile]\nmemory-pages = 3\n")

	var out bytes.Buffer
	if err := runCLI([]string{"pywat", "-C", dir, "run"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "True\n" {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := runCLI([]string{"pywat", "-C", dir, "compile"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `(import "js" "memory" (memory 3))`) {
		t.Errorf("memory pages not taken from the manifest:\n%s", out.String())
	}
}

func TestSourceRequired(t *testing.T) {
	_, err := run(t, "check")
	if err == nil || !strings.Contains(err.Error(), "source file required") {
		t.Errorf("error = %v", err)
	}
}

func TestDumpCommands(t *testing.T) {
	src := writeSource(t, t.TempDir(), "a.py", "x:int = 1\nx + 2\n")

	out, err := run(t, "cst", src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Script") || !strings.Contains(out, "BinaryExpression") {
		t.Errorf("cst output:\n%s", out)
	}

	out, err = run(t, "ast", src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"Decls"`) || !strings.Contains(out, `"Name": "x"`) {
		t.Errorf("ast output:\n%s", out)
	}
}

func TestCountFlag(t *testing.T) {
	var out bytes.Buffer
	if err := runCLI([]string{"pywat", "-v", "-v", "-C", t.TempDir(), "help"}, &out); err != nil {
		t.Fatal(err)
	}
	var f countFlag
	f.Set("true")
	f.Set("true")
	if f != 2 {
		t.Errorf("count = %d, want 2", f)
	}
}

func TestExampleProject(t *testing.T) {
	var out bytes.Buffer
	dir := filepath.Join("..", "..", "examples", "counter")
	if err := runCLI([]string{"pywat", "-C", dir, "run", "-echo"}, &out); err != nil {
		t.Fatal(err)
	}
	if want := "4\n2\nTrue\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := runCLI([]string{"pywat", "-C", dir, "compile"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "(memory 2)") {
		t.Errorf("compiled module does not import 2 pages:\n%s", out.String())
	}
}
