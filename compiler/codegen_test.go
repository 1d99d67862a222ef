package compiler

import (
	"strings"
	"testing"
)

func mustCompile(t *testing.T, source string, env *GlobalEnv) *Result {
	t.Helper()
	res, err := Compile(source, env)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	return res
}

func TestLayoutNestedClassSize(t *testing.T) {
	source := `class Other(object):
    a:int = 0
    b:bool = False
    c:int = 0
class Outer(object):
    f1:int = 0
    f2:Other = None
`
	res := mustCompile(t, source, NewGlobalEnv())
	k := res.Env.ClassSizes["Other"]
	if k != 3 {
		t.Fatalf("size(Other) = %d, want 3", k)
	}
	if got := res.Env.ClassSizes["Outer"]; got != 1+k {
		t.Errorf("size(Outer) = %d, want %d", got, 1+k)
	}
	f2, _ := res.Env.Classes["Outer"].Field("f2")
	if f2.Offset != 1 {
		t.Errorf("offset of f2 = %d, want 1", f2.Offset)
	}
}

func TestLayoutGlobals(t *testing.T) {
	source := `class P(object):
    x:int = 0
    y:int = 0
a:int = 1
p:P = None
q:P = p
b:bool = True
`
	res := mustCompile(t, source, NewGlobalEnv())
	env := res.Env

	want := map[string]int{"a": 1, "p": 2, "q": 2, "b": 4}
	for name, off := range want {
		if got := env.Offsets[name]; got != off {
			t.Errorf("offset of %s = %d, want %d", name, got, off)
		}
	}
	if env.Offset != 5 {
		t.Errorf("next offset = %d, want 5", env.Offset)
	}
}

func TestLayoutRedeclaredAliasGetsStorage(t *testing.T) {
	env := mustCompile(t, "class C(object):\n    n:int = 0\nx:C = None\ny:C = x\n", NewGlobalEnv()).Env
	if env.Offsets["y"] != env.Offsets["x"] || env.Aliases["y"] != "x" {
		t.Fatalf("y does not alias x: offsets %v, aliases %v", env.Offsets, env.Aliases)
	}
	next := mustCompile(t, "y:C = None\n", env).Env
	if next.Offsets["y"] == next.Offsets["x"] {
		t.Errorf("redeclared y still shares the storage of x at word %d", next.Offsets["x"])
	}
	if _, ok := next.Aliases["y"]; ok {
		t.Error("redeclared y is still recorded as an alias")
	}
	again := mustCompile(t, "y:C = None\n", next).Env
	if again.Offsets["y"] != next.Offsets["y"] || again.Offset != next.Offset {
		t.Error("redeclaring y a second time moved its storage")
	}
}

func TestLayoutOffsetMonotonic(t *testing.T) {
	env := NewGlobalEnv()
	prev := env.Offset
	for _, src := range []string{"a:int = 1\n", "b:int = 2\n", "a:int = 3\n", "c:bool = False\n"} {
		env = mustCompile(t, src, env).Env
		if env.Offset < prev {
			t.Fatalf("offset went from %d to %d after %q", prev, env.Offset, src)
		}
		prev = env.Offset
	}
	if env.Offsets["a"] != 1 || env.Offsets["c"] != 3 {
		t.Errorf("offsets = %v", env.Offsets)
	}
}

func TestOutOfGlobalStorage(t *testing.T) {
	env := NewGlobalEnv()
	env.Offset = PageSize/WordSize - 1
	_, err := Compile("x:int = 1\n", env)
	if err == nil || !strings.Contains(err.Error(), "out of global storage") {
		t.Fatalf("error = %v, want out of global storage", err)
	}
	if KindOf(err) != KindType {
		t.Errorf("kind = %v, want %v", KindOf(err), KindType)
	}
}

func TestGenerateModuleShape(t *testing.T) {
	source := `class C(object):
    n:int = 0
    def inc(self:C, by:int) -> int:
        self.n = self.n + by
        return self.n
def twice(x:int) -> int:
    return x * 2
c:C = None
c.inc(twice(2))
c.n
`
	res := mustCompile(t, source, NewGlobalEnv())
	wat := res.WAT

	for _, want := range []string{
		`(import "imports" "print" (func $host$print (param i32) (result i32)))`,
		`(import "imports" "print_num" (func $host$print_num (param i32) (result i32)))`,
		`(import "imports" "print_bool" (func $host$print_bool (param i32) (result i32)))`,
		`(import "imports" "print_none" (func $host$print_none (param i32) (result i32)))`,
		`(import "js" "memory" (memory 1))`,
		`(func $C_inc (param $self i32) (param $by i32) (result i32)`,
		`(func $fn$twice (param $x i32) (result i32)`,
		`(func $rt$entry (export "exported_func") (result i32)`,
		`(func $rt$echo (export "echo")`,
		`(func $rt$init$C (param $p i32)`,
		`(func $rt$new$C (result i32)`,
		"call $C_inc",
		"call $fn$twice",
		"i32.mul",
	} {
		if !strings.Contains(wat, want) {
			t.Errorf("module lacks %q\n%s", want, wat)
		}
	}
	if res.Echo != PrintNum {
		t.Errorf("echo = %s, want %s", res.Echo, PrintNum)
	}
	if sig := res.Env.MethodSigs["C_inc"]; sig != "(func $C_inc (param $self i32) (param $by i32) (result i32)" {
		t.Errorf("recorded signature = %q", sig)
	}
	if _, ok := res.Env.Bodies["fn$twice"]; !ok {
		t.Error("function body not recorded")
	}
}

func TestGenerateOperators(t *testing.T) {
	tests := []struct {
		source string
		instrs []string
	}{
		{"1 + 2\n", []string{"i32.add"}},
		{"1 - 2\n", []string{"i32.sub"}},
		{"7 // 2\n", []string{"i32.div_s"}},
		{"7 % 2\n", []string{"i32.rem_s"}},
		{"1 < 2\n", []string{"i32.lt_s"}},
		{"1 >= 2\n", []string{"i32.ge_s"}},
		{"1 != 2\n", []string{"i32.ne"}},
		{"None is None\n", []string{"i32.eq"}},
		{"not True\n", []string{"i32.const 1", "i32.xor"}},
		{"x:int = 3\n-x\n", []string{"i32.const 0", "i32.const 4", "i32.load", "i32.sub"}},
	}
	for _, tt := range tests {
		res := mustCompile(t, tt.source, NewGlobalEnv())
		for _, instr := range tt.instrs {
			if !strings.Contains(res.WAT, instr) {
				t.Errorf("%q: module lacks %q", tt.source, instr)
			}
		}
	}
}

func TestGeneratePrintRouting(t *testing.T) {
	tests := []struct {
		source string
		call   string
		echo   string
	}{
		{"print(1)\n", "call $host$print_num", PrintNone},
		{"print(True)\n", "call $host$print_bool", PrintNone},
		{"print(None)\n", "call $host$print_none", PrintNone},
		{"class C(object):\n    pass\nprint(C())\n", "call $host$print\n", PrintNone},
		{"True\n", "", PrintBool},
		{"class C(object):\n    pass\nC()\n", "", PrintObject},
	}
	for _, tt := range tests {
		res := mustCompile(t, tt.source, NewGlobalEnv())
		if tt.call != "" && !strings.Contains(res.WAT, tt.call) {
			t.Errorf("%q: module lacks %q", tt.source, tt.call)
		}
		if res.Echo != tt.echo {
			t.Errorf("%q: echo = %s, want %s", tt.source, res.Echo, tt.echo)
		}
	}
}

func TestGenerateReemitsCommittedBodies(t *testing.T) {
	env := mustCompile(t, "def f() -> int:\n    return 41\n", NewGlobalEnv()).Env
	res := mustCompile(t, "f() + 1\n", env)
	if !strings.Contains(res.WAT, "(func $fn$f (result i32)") {
		t.Errorf("second module does not carry f:\n%s", res.WAT)
	}
}

func TestGenerateComments(t *testing.T) {
	prog := mustParse(t, "x:int = 1\nx = 2\n")
	checked, err := TypeCheck(prog, NewGlobalEnv())
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := GenerateWithOptions(checked, NewGlobalEnv(), Options{Comments: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.WAT, ";; line 2") {
		t.Errorf("module lacks line comment:\n%s", out.WAT)
	}
}

func TestGenerateUncheckedIsInternal(t *testing.T) {
	prog := mustParse(t, "x:int = 1\n")
	prog.Stmts = append(prog.Stmts, &ExprStmt{Expr: &Ident{Name: "ghost"}})
	checked := &Checked{Program: prog, Types: map[Expr]Type{}, Result: NumberType}
	_, _, err := Generate(checked, NewGlobalEnv())
	if KindOf(err) != KindInternal {
		t.Fatalf("error = %v, want an internal error", err)
	}
}

func TestCompileLeavesEnvUntouched(t *testing.T) {
	env := mustCompile(t, "class C(object):\n    n:int = 0\nc:C = None\nx:int = 1\n", NewGlobalEnv()).Env
	before := env.Clone()

	failures := []string{
		"x = = 2\n",               // grammar
		"while True:\n    pass\n", // parse
		"y:int = 1\nx = True\n",   // type, after a new declaration
		"class D(object):\n    n:int = 0\nd:D = None\nd.m()\n",
	}
	for _, src := range failures {
		if _, err := Compile(src, env); err == nil {
			t.Fatalf("Compile(%q) succeeded", src)
		}
		if !env.Equal(before) {
			t.Fatalf("env changed after failed compile of %q", src)
		}
	}

	after := mustCompile(t, "x = x + 1\nc.n\n", env)
	fresh := mustCompile(t, "x = x + 1\nc.n\n", before)
	if after.WAT != fresh.WAT || !after.Env.Equal(fresh.Env) {
		t.Error("compile after failures differs from compile on a pristine env")
	}
}

// Every program that type checks must generate without an internal error.
func TestCodegenCompleteness(t *testing.T) {
	corpus := []string{
		"x:int = 5\nx = x + 1\nprint(x)\n",
		"def f(x:int, y:int)->bool:\n  return x <= y\nf(3, 5)\n",
		"class C(object):\n  n:int = 0\nx:C = None\nx.n\n",
		`class Vec(object):
    x:int = 0
    y:int = 0
    def dot(self:Vec, o:Vec) -> int:
        return self.x * o.x + self.y * o.y
    def scale(self:Vec, k:int) -> Vec:
        v:Vec = None
        v = Vec()
        v.x = self.x * k
        v.y = self.y * k
        return v
class Line(object):
    a:Vec = None
    b:Vec = None
    def length2(self:Line) -> int:
        dx:int = 0
        dy:int = 0
        dx = self.b.x - self.a.x
        dy = self.b.y - self.a.y
        return dx * dx + dy * dy
l:Line = None
m:Line = l
v:Vec = None
l.b.x = 3
l.b.y = 4
l.a = v
v = l.b
print(l.length2())
if m.length2() is l:
    print(True)
elif l.b.x > 25:
    print(1)
else:
    pass
l.a.scale(2)
`,
		`def sign(n:int) -> int:
    if n < 0:
        return -1
    elif n == 0:
        return 0
    else:
        return 1
def noop(n:int):
    pass
noop(sign(-5))
sign(7) % 2 == 1
`,
	}
	for _, src := range corpus {
		checked, err := check(t, src, NewGlobalEnv())
		if err != nil {
			t.Fatalf("corpus program does not type check: %v\n%s", err, src)
		}
		if _, _, err := Generate(checked, NewGlobalEnv()); err != nil {
			t.Errorf("Generate: %v\n%s", err, src)
		}
	}
}

func TestGenerateSymbolsDoNotCollide(t *testing.T) {
	sources := []string{
		"def alloc(n:int) -> int:\n    return n\nalloc(1)\n",
		"def echo(n:int) -> int:\n    return n\necho(1)\n",
		"def exported_func() -> int:\n    return 1\nexported_func()\n",
		"def print_num(n:int) -> int:\n    return n\nprint(print_num(2))\n",
		"class C(object):\n    def m(self:C) -> int:\n        return 1\ndef C_m(self:C) -> int:\n    return 2\nc:C = None\nc.m()\n",
	}
	for _, src := range sources {
		res := mustCompile(t, src, NewGlobalEnv())
		seen := make(map[string]bool)
		for _, line := range strings.Split(res.WAT, "\n") {
			fields := strings.Fields(line)
			var name string
			switch {
			case len(fields) >= 2 && fields[0] == "(func":
				name = fields[1]
			case len(fields) >= 5 && fields[0] == "(import" && fields[3] == "(func":
				name = fields[4]
			default:
				continue
			}
			if seen[name] {
				t.Errorf("%q: function %s emitted twice\n%s", src, name, res.WAT)
			}
			seen[name] = true
		}
	}
}

func TestGenerateFunctionKeepsMethodBody(t *testing.T) {
	src := `class C(object):
    def m(self:C) -> int:
        return 1
def C_m(self:C) -> int:
    return 2
c:C = None
c.m()
`
	res := mustCompile(t, src, NewGlobalEnv())
	method, fn := res.Env.Bodies["C_m"], res.Env.Bodies["fn$C_m"]
	if !strings.Contains(method, "i32.const 1") || !strings.Contains(fn, "i32.const 2") {
		t.Errorf("method body %q, function body %q", method, fn)
	}
}

func TestMangledMethodClash(t *testing.T) {
	src := `class A_b(object):
    def c(self:A_b) -> int:
        return 1
class A(object):
    def b_c(self:A) -> int:
        return 2
`
	_, err := Compile(src, NewGlobalEnv())
	if KindOf(err) != KindType || !strings.Contains(err.Error(), "$A_b_c") {
		t.Fatalf("error = %v, want a type error naming $A_b_c", err)
	}
}
