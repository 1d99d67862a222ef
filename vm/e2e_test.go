package vm_test

import (
	"bytes"
	"testing"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/vm"
)

// run compiles each source in turn against one environment and one memory,
// as a REPL session would, and returns the last result and all output.
func run(t *testing.T, sources ...string) (int32, string) {
	t.Helper()
	env := compiler.NewGlobalEnv()
	mem := vm.NewMemory(env.MemoryPages)
	var out bytes.Buffer
	var result int32
	for _, src := range sources {
		res, err := compiler.Compile(src, env)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		result, err = vm.Run(res.WAT, mem, &out, compiler.EntryFunc)
		if err != nil {
			t.Fatalf("Run(%q): %v\n%s", src, err, res.WAT)
		}
		env = res.Env
	}
	return result, out.String()
}

// scenarios are whole sessions: each source is compiled against the
// environment the previous one left behind.
var scenarios = []struct {
	name    string
	sources []string
	result  int32
	output  string
}{
	{
		name:    "scenario A",
		sources: []string{"x:int = 5\nx = x + 1\nprint(x)\n"},
		output:  "6\n",
	},
	{
		name:    "scenario B",
		sources: []string{"def f(x:int, y:int)->bool:\n  return x <= y\nf(3, 5)\n"},
		result:  1,
	},
	{
		name:    "arithmetic truncates toward zero",
		sources: []string{"print(7 // 2)\nprint(-7 // 2)\nprint(-7 % 2)\n-(3 - 10) * 2\n"},
		result:  14,
		output:  "3\n-3\n-1\n",
	},
	{
		name:    "not and comparisons",
		sources: []string{"print(not (1 < 2))\nprint(2 != 2)\nprint(None is None)\n"},
		output:  "False\nFalse\nTrue\n",
	},
	{
		name: "elif",
		sources: []string{`def sign(n:int) -> int:
    if n < 0:
        return -1
    elif n == 0:
        return 0
    else:
        return 1
print(sign(-4))
print(sign(0))
sign(9)
`},
		result: 1,
		output: "-1\n0\n",
	},
	{
		name: "fields and methods",
		sources: []string{`class Counter(object):
    n:int = 10
    def inc(self:Counter, by:int) -> int:
        self.n = self.n + by
        return self.n
c:Counter = None
c.inc(5)
c.inc(1)
c.n
`},
		result: 16,
	},
	{
		name: "embedded fields",
		sources: []string{`class A(object):
    v:int = 3
    w:bool = True
class B(object):
    k:int = 1
    a:A = None
b:B = None
print(b.a.w)
b.a.v = b.a.v + b.k
b.a.v
`},
		result: 4,
		output: "True\n",
	},
	{
		name: "construction gives fresh defaults",
		sources: []string{`class P(object):
    x:int = 7
def make() -> P:
    p:P = None
    p = P()
    p.x = p.x + 1
    return p
g:P = None
g = make()
g.x = g.x * 10
make().x + g.x
`},
		result: 88,
	},
	{
		name: "alias shares storage",
		sources: []string{`class C(object):
    n:int = 0
a:C = None
b:C = a
b.n = 42
a.n
`},
		result: 42,
	},
	{
		name: "global assignment copies",
		sources: []string{`class C(object):
    n:int = 1
a:C = None
b:C = None
a.n = 5
b = a
a.n = 6
b.n
`},
		result: 5,
	},
	{
		name: "identity of objects",
		sources: []string{`class C(object):
    pass
a:C = None
b:C = a
c:C = None
print(a is b)
a is c
`},
		result: 0,
		output: "True\n",
	},
	{
		name: "session state across modules",
		sources: []string{
			"x:int = 1\nclass C(object):\n    n:int = 2\n    def get(self:C) -> int:\n        return self.n\nc:C = None\n",
			"x = x + 40\nc.n = 3\n",
			"c.get()\nx + c.n\n",
		},
		result: 44,
	},
	{
		name: "redeclared alias leaves its target alone",
		sources: []string{
			"class C(object):\n    n:int = 1\nx:C = None\ny:C = x\n",
			"y.n = 5\n",
			"y:C = None\ny.n = 9\nx.n\n",
		},
		result: 5,
	},
	{
		name: "functions named like runtime helpers",
		sources: []string{`class C(object):
    def m(self:C) -> int:
        return 1
def alloc(n:int) -> int:
    return n
def echo(n:int) -> int:
    return n + 1
def C_m(self:C) -> int:
    return 2
c:C = None
print(alloc(3))
print(echo(3))
print(C_m(c))
c.m()
`},
		result: 1,
		output: "3\n4\n2\n",
	},
	{
		name:    "if statement",
		sources: []string{"x:int = 0\nif x == 0:\n    print(1)\nelse:\n    print(2)\nx\n"},
		result:  0,
		output:  "1\n",
	},
}

func TestScenarios(t *testing.T) {
	for _, tt := range scenarios {
		t.Run(tt.name, func(t *testing.T) {
			result, output := run(t, tt.sources...)
			if result != tt.result {
				t.Errorf("result = %d, want %d", result, tt.result)
			}
			if output != tt.output {
				t.Errorf("output = %q, want %q", output, tt.output)
			}
		})
	}
}

func TestEchoExport(t *testing.T) {
	res, err := compiler.Compile("1 < 2\n", compiler.NewGlobalEnv())
	if err != nil {
		t.Fatal(err)
	}
	mod, err := vm.ParseModule(res.WAT)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	inst, err := vm.Instantiate(mod, vm.Imports{Funcs: vm.PrintImports(&out), Memory: vm.NewMemory(1)})
	if err != nil {
		t.Fatal(err)
	}
	v, err := inst.Call(compiler.EntryFunc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Call(compiler.EchoFunc, v); err != nil {
		t.Fatal(err)
	}
	if out.String() != "True\n" {
		t.Errorf("echo printed %q, want %q", out.String(), "True\n")
	}
}

func TestHeapExhaustionTraps(t *testing.T) {
	src := `class Big(object):
    a:int = 0
    b:int = 0
    c:int = 0
    d:int = 0
    e:int = 0
    f:int = 0
    g:int = 0
    h:int = 0
def churn(n:int) -> int:
    b:Big = None
    if n == 0:
        return 0
    b = Big()
    return churn(n - 1)
churn(3000)
`
	res, err := compiler.Compile(src, compiler.NewGlobalEnv())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	_, err = vm.Run(res.WAT, vm.NewMemory(1), &out, compiler.EntryFunc)
	if err == nil {
		t.Fatal("expected the heap to run into the globals")
	}
}
