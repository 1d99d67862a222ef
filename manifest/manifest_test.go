package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "shapes"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
entry = "src/main.py"

[compile]
memory-pages = 4
emit-comments = true

[repl]
history-db = "var/history.db"

[server]
addr = ":9090"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "shapes" {
		t.Errorf("project name = %q, want shapes", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.EntryPath() != filepath.Join(m.Dir, "src", "main.py") {
		t.Errorf("entry path = %q", m.EntryPath())
	}
	if m.Compile.MemoryPages != 4 || !m.Compile.EmitComments {
		t.Errorf("compile = %+v", m.Compile)
	}
	if m.HistoryDBPath() != filepath.Join(m.Dir, "var", "history.db") {
		t.Errorf("history db = %q", m.HistoryDBPath())
	}
	if m.Server.Addr != ":9090" {
		t.Errorf("server addr = %q, want :9090", m.Server.Addr)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Compile.MemoryPages != DefaultMemoryPages {
		t.Errorf("default memory pages = %d", m.Compile.MemoryPages)
	}
	if m.Server.Addr != DefaultAddr {
		t.Errorf("default addr = %q", m.Server.Addr)
	}
	if m.EntryPath() != "" {
		t.Errorf("entry path = %q, want none", m.EntryPath())
	}
	if m.HistoryDBPath() != filepath.Join(m.Dir, ".pywat", "history.db") {
		t.Errorf("history db = %q", m.HistoryDBPath())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", "[project\n", "parse error"},
		{"unknown key", "[project]\nname = \"x\"\nnamespace = \"X\"\n", "unknown key"},
		{"missing name", "[source]\ndirs = [\"src\"]\n", "name"},
		{"bad name", "[project]\nname = \"9lives\"\n", "name"},
		{"zero pages", "[project]\nname = \"x\"\n[compile]\nmemory-pages = -1\n", "memory-pages"},
		{"too many pages", "[project]\nname = \"x\"\n[compile]\nmemory-pages = 70000\n", "memory-pages"},
		{"bad addr", "[project]\nname = \"x\"\n[server]\naddr = \"localhost\"\n", "addr"},
		{"empty dir", "[project]\nname = \"x\"\n[source]\ndirs = [\"\"]\n", "dirs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	m := Default()
	m.Project.Name = "scratch"
	if err := Validate(m); err != nil {
		t.Errorf("default manifest is invalid: %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no pywat.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}
