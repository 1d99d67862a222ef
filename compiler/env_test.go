package compiler

import (
	"strings"
	"testing"
)

func TestGlobalEnvClone(t *testing.T) {
	env := mustCompile(t, "class C(object):\n    n:int = 0\n    def m(self:C, a:int) -> int:\n        return a\nc:C = None\n", NewGlobalEnv()).Env
	clone := env.Clone()
	if !clone.Equal(env) {
		t.Fatal("clone differs from original")
	}

	clone.Classes["C"].Fields[0].Default = 9
	clone.Classes["C"].Methods["m"].Params[0].Name = "b"
	clone.Offsets["c"] = 40
	clone.Offset++

	if env.Classes["C"].Fields[0].Default != 0 {
		t.Error("field change leaked into original")
	}
	if env.Classes["C"].Methods["m"].Params[0].Name != "a" {
		t.Error("signature change leaked into original")
	}
	if env.Offsets["c"] != 1 || env.Offset != 2 {
		t.Errorf("layout change leaked into original: %v, next %d", env.Offsets, env.Offset)
	}
	if clone.Equal(env) {
		t.Error("modified clone still equal")
	}
}

func TestNewGlobalEnvReservesWordZero(t *testing.T) {
	env := NewGlobalEnv()
	if env.Offset != 1 {
		t.Errorf("first free word = %d, want 1", env.Offset)
	}
	if got := env.HeapPointerAddr(); got != PageSize-WordSize {
		t.Errorf("heap pointer cell at %d, want %d", got, PageSize-WordSize)
	}
}

func TestRender(t *testing.T) {
	src := "x:int = 1\ny:bool = 2\nprint(y)\n"
	_, err := Compile(src, NewGlobalEnv())
	if err == nil {
		t.Fatal("expected a type error")
	}
	out := Render(err, src)
	for _, want := range []string{"TYPE ERROR at 2:", "   2 | y:bool = 2", "   1 | x:int = 1", "^"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered error lacks %q:\n%s", want, out)
		}
	}
}
