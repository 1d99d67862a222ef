package compiler

import "testing"

// ---------------------------------------------------------------------------
// FuzzCompile: the pipeline never panics, and anything that type checks
// also generates.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		"x:int = 5\nx = x + 1\nprint(x)\n",
		"def f(x:int, y:int)->bool:\n  return x <= y\nf(3, 5)\n",
		"class C(object):\n  n:int = 0\nx:C = None\nx is None\n",
		"class C(object):\n    def m(self:C, a:int) -> int:\n        return a\nc:C = None\nc.m(1, 2)\n",
		"class A(object):\n    n:int = 0\nclass B(object):\n    a:A = None\nb:B = None\nb.a.n = 3\nb.a.n\n",
		"if True:\n    pass\nelif False:\n    pass\nelse:\n    print(1)\n",
		"not not (1 < 2)\n",
		"-(-(3 // 2))\n",
		"",
		"\n\n",
		"x:int = \n",
		"class (object):\n",
		"def f(:\n",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, source string) {
		env := NewGlobalEnv()
		checked, err := Check(source, env)
		if err != nil {
			if KindOf(err) == 0 {
				t.Fatalf("untyped error %T: %v", err, err)
			}
			return
		}
		if _, _, err := Generate(checked, env); err != nil && KindOf(err) == KindInternal {
			t.Fatalf("internal error for checked program %q: %v", source, err)
		}
	})
}
