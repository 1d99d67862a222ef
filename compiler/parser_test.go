package compiler

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, source string) *Program {
	t.Helper()
	prog, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	return prog
}

func TestParseVarDefs(t *testing.T) {
	prog := mustParse(t, "x:int = 5\nb:bool = True\nn:int = -3\n")
	if len(prog.Decls) != 3 || len(prog.Stmts) != 0 {
		t.Fatalf("got %d decls, %d stmts", len(prog.Decls), len(prog.Stmts))
	}

	tests := []struct {
		name  string
		typ   Type
		value int32
	}{
		{"x", NumberType, 5},
		{"b", BoolType, 1},
		{"n", NumberType, -3},
	}
	for i, tt := range tests {
		v, ok := prog.Decls[i].(*VarDef)
		if !ok {
			t.Fatalf("decl %d is %T, want *VarDef", i, prog.Decls[i])
		}
		if v.Name != tt.name || !v.Type.Equal(tt.typ) {
			t.Errorf("decl %d = %s:%s, want %s:%s", i, v.Name, v.Type, tt.name, tt.typ)
		}
		if got := literalValue(v.Init); got != tt.value {
			t.Errorf("%s initializer = %d, want %d", v.Name, got, tt.value)
		}
	}
}

func TestParseClass(t *testing.T) {
	source := `class Point(object):
    x:int = 0
    y:int = 0
    def norm(self:Point) -> int:
        return self.x * self.x + self.y * self.y
p:Point = None
p.norm()
`
	prog := mustParse(t, source)
	cls, ok := prog.Decls[0].(*ClassDef)
	if !ok {
		t.Fatalf("decl 0 is %T, want *ClassDef", prog.Decls[0])
	}
	if cls.Name != "Point" || len(cls.Fields) != 2 || len(cls.Methods) != 1 {
		t.Fatalf("class = %s with %d fields, %d methods", cls.Name, len(cls.Fields), len(cls.Methods))
	}
	m := cls.Methods[0]
	if m.Name != "norm" || !m.Self.Equal(ClassType("Point")) || !m.Return.Equal(NumberType) {
		t.Errorf("method = %s(self:%s) -> %s", m.Name, m.Self, m.Return)
	}
	if len(m.Body.Stmts) != 1 {
		t.Fatalf("method body has %d statements", len(m.Body.Stmts))
	}
	if _, ok := m.Body.Stmts[0].(*ReturnStmt); !ok {
		t.Errorf("method statement is %T, want *ReturnStmt", m.Body.Stmts[0])
	}

	p, ok := prog.Decls[1].(*VarDef)
	if !ok || !p.Type.Equal(ClassType("Point")) {
		t.Fatalf("decl 1 = %#v, want p:Point", prog.Decls[1])
	}
	if _, ok := p.Init.(*NoneLit); !ok {
		t.Errorf("p initializer is %T, want *NoneLit", p.Init)
	}

	es, ok := prog.Stmts[0].(*ExprStmt)
	if !ok {
		t.Fatalf("stmt is %T, want *ExprStmt", prog.Stmts[0])
	}
	call, ok := es.Expr.(*MethodCallExpr)
	if !ok || call.Method != "norm" || len(call.Args) != 0 {
		t.Errorf("expr = %#v, want p.norm()", es.Expr)
	}
}

func TestParseExpressions(t *testing.T) {
	prog := mustParse(t, "x:int = 1\n-x + 2 * 3\n")
	es := prog.Stmts[0].(*ExprStmt)
	add, ok := es.Expr.(*BinaryExpr)
	if !ok || add.Op != OpAdd {
		t.Fatalf("top expr = %#v, want addition", es.Expr)
	}
	if neg, ok := add.Left.(*UnaryExpr); !ok || neg.Op != OpNeg {
		t.Errorf("left = %#v, want negation", add.Left)
	}
	if mul, ok := add.Right.(*BinaryExpr); !ok || mul.Op != OpMul {
		t.Errorf("right = %#v, want multiplication", add.Right)
	}
}

func TestParseCalls(t *testing.T) {
	source := `class C(object):
    pass
def f(a:int) -> int:
    return a
print(f(1))
C()
`
	prog := mustParse(t, source)
	if _, ok := prog.Decls[1].(*FuncDef); !ok {
		t.Fatalf("decl 1 is %T, want *FuncDef", prog.Decls[1])
	}
	pr, ok := prog.Stmts[0].(*ExprStmt).Expr.(*PrintExpr)
	if !ok {
		t.Fatalf("stmt 0 is not a print")
	}
	if call, ok := pr.Arg.(*CallExpr); !ok || call.Func != "f" {
		t.Errorf("print arg = %#v, want call of f", pr.Arg)
	}
	if c, ok := prog.Stmts[1].(*ExprStmt).Expr.(*ConstructExpr); !ok || c.Class != "C" {
		t.Errorf("stmt 1 = %#v, want C()", prog.Stmts[1])
	}
}

func TestParseElifLowering(t *testing.T) {
	source := `x:int = 1
if x < 0:
    x = 0
elif x == 0:
    x = 1
else:
    x = 2
`
	prog := mustParse(t, source)
	outer, ok := prog.Stmts[0].(*IfStmt)
	if !ok {
		t.Fatalf("stmt is %T, want *IfStmt", prog.Stmts[0])
	}
	if len(outer.Else) != 1 {
		t.Fatalf("else has %d statements, want the nested if", len(outer.Else))
	}
	inner, ok := outer.Else[0].(*IfStmt)
	if !ok {
		t.Fatalf("else holds %T, want *IfStmt", outer.Else[0])
	}
	if len(inner.Then) != 1 || len(inner.Else) != 1 {
		t.Errorf("inner if has %d/%d statements", len(inner.Then), len(inner.Else))
	}
}

func TestParseMemberAssign(t *testing.T) {
	source := `class C(object):
    v:int = 0
c:C = None
c.v = 3
`
	prog := mustParse(t, source)
	ma, ok := prog.Stmts[0].(*MemberAssignStmt)
	if !ok {
		t.Fatalf("stmt is %T, want *MemberAssignStmt", prog.Stmts[0])
	}
	if ma.Field != "v" {
		t.Errorf("field = %q", ma.Field)
	}
}

func TestParseObjectAlias(t *testing.T) {
	source := `class C(object):
    pass
a:C = None
b:C = a
`
	prog := mustParse(t, source)
	b := prog.Decls[2].(*VarDef)
	if lit, ok := b.Init.(*ObjectLit); !ok || lit.Name != "a" {
		t.Errorf("b initializer = %#v, want alias of a", b.Init)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"string", "'hi'\n", "strings are not supported"},
		{"while", "x:int = 0\nwhile x < 3:\n    x = x + 1\n", "while loops are not supported"},
		{"and", "True and False\n", `operator "and" is not supported`},
		{"true division", "1 / 2\n", "true division"},
		{"chained", "1 < 2 < 3\n", "chained comparisons"},
		{"float", "x:int = 1.5\n", "floating-point"},
		{"out of range", "x:int = 4294967296\n", "out of range"},
		{"unknown type", "x:str = 1\n", `unknown type "str"`},
		{"decl after stmt", "1\nx:int = 1\n", "declarations must come before statements"},
		{"missing self", "class C(object):\n    def m() -> int:\n        return 1\n", "self as its first parameter"},
		{"wrong self", "class C(object):\n    pass\nclass D(object):\n    def m(self:C) -> int:\n        return 1\n", "self must be annotated as D"},
		{"inheritance", "class C(int):\n    pass\n", "must derive from object"},
		{"print arity", "print(1, 2)\n", "exactly one argument"},
		{"constructor args", "class C(object):\n    pass\nC(1)\n", "takes no arguments"},
		{"keyword arg", "def f(a:int) -> int:\n    return a\nf(a=1)\n", "keyword arguments"},
		{"nested def", "def f() -> int:\n    def g() -> int:\n        return 1\n    return 1\n", "nested definitions"},
		{"decl in if", "if True:\n    x:int = 1\n", "inside a conditional"},
		{"unannotated param", "def f(a) -> int:\n    return 1\n", "needs a type annotation"},
		{"grammar", "x = = 1\n", "unexpected"},
		{"bad indent", "if True:\n        pass\n    pass\n", "unindent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error containing %q", tt.source, tt.want)
			}
			if KindOf(err) != KindParse {
				t.Errorf("kind = %v, want %v", KindOf(err), KindParse)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParseErrorSpan(t *testing.T) {
	_, err := Parse("x:int = 1\ny:int = 'no'\n")
	cerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error is %T, want *Error", err)
	}
	if cerr.Span.Start.Line != 2 || cerr.Span.Start.Column != 9 {
		t.Errorf("span starts at %d:%d, want 2:9", cerr.Span.Start.Line, cerr.Span.Start.Column)
	}
}

func TestParseWithKnownClasses(t *testing.T) {
	if _, err := Parse("c:C = None\n"); err == nil {
		t.Fatal("unknown class accepted without a registry")
	}
	if _, err := ParseWithClasses("c:C = None\n", []string{"C"}); err != nil {
		t.Fatalf("known class rejected: %v", err)
	}
}
