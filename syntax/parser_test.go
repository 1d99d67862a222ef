package syntax

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return tree
}

func TestParseStatementKinds(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{"x:int = 5", AssignStatement},
		{"x = x + 1", AssignStatement},
		{"print(x)", ExpressionStatement},
		{"pass", PassStatement},
		{"return 1", ReturnStatement},
		{"class C(object):\n  n:int = 0", ClassDefinition},
		{"def f(x:int)->bool:\n  return True", FunctionDefinition},
		{"if a:\n  pass\nelse:\n  pass", IfStatement},
		{"while a:\n  pass", WhileStatement},
	}
	for _, tc := range tests {
		tree := mustParse(t, tc.input)
		if len(tree.Root.Children) != 1 {
			t.Errorf("%q: %d statements, want 1", tc.input, len(tree.Root.Children))
			continue
		}
		if got := tree.Root.Children[0].Kind; got != tc.kind {
			t.Errorf("%q: kind = %s, want %s", tc.input, got, tc.kind)
		}
	}
}

func TestParseTypedAssignment(t *testing.T) {
	tree := mustParse(t, "x:int = 5")
	stmt := tree.Root.Children[0]
	if len(stmt.Children) != 3 {
		t.Fatalf("children = %d, want 3", len(stmt.Children))
	}
	td := stmt.Child(TypeDef)
	if td == nil {
		t.Fatal("missing TypeDef")
	}
	if got := tree.Text(td.Children[0]); got != "int" {
		t.Errorf("type = %q, want int", got)
	}
	if got := tree.Text(stmt.Children[2]); got != "5" {
		t.Errorf("value = %q, want 5", got)
	}
}

func TestParsePrecedence(t *testing.T) {
	tree := mustParse(t, "1 + 2 * 3 < 4")
	cmp := tree.Root.Children[0].Children[0]
	if cmp.Kind != BinaryExpression || tree.Text(cmp.Children[1]) != "<" {
		t.Fatalf("top = %s %q, want comparison", cmp.Kind, tree.Text(cmp))
	}
	sum := cmp.Children[0]
	if tree.Text(sum.Children[1]) != "+" {
		t.Fatalf("left op = %q, want +", tree.Text(sum.Children[1]))
	}
	if prod := sum.Children[2]; tree.Text(prod) != "2 * 3" {
		t.Errorf("product = %q, want 2 * 3", tree.Text(prod))
	}
}

func TestParseChainedComparisonIsFlat(t *testing.T) {
	tree := mustParse(t, "a < b < c")
	cmp := tree.Root.Children[0].Children[0]
	if len(cmp.Children) != 5 {
		t.Errorf("chain children = %d, want 5", len(cmp.Children))
	}
}

func TestParseIsNot(t *testing.T) {
	tree := mustParse(t, "a is not None")
	cmp := tree.Root.Children[0].Children[0]
	if got := tree.Text(cmp.Children[1]); got != "is not" {
		t.Errorf("op = %q, want %q", got, "is not")
	}
}

func TestParseMemberAndCallChain(t *testing.T) {
	tree := mustParse(t, "a.b.m(1, 2)")
	call := tree.Root.Children[0].Children[0]
	if call.Kind != CallExpression {
		t.Fatalf("kind = %s, want CallExpression", call.Kind)
	}
	member := call.Children[0]
	if member.Kind != MemberExpression || tree.Text(member.Child(PropertyName)) != "m" {
		t.Fatalf("callee = %s %q", member.Kind, tree.Text(member))
	}
	if args := call.Child(ArgList); len(args.Children) != 2 {
		t.Errorf("args = %d, want 2", len(args.Children))
	}
}

func TestParseElifChain(t *testing.T) {
	src := "if a:\n  x = 1\nelif b:\n  x = 2\nelif c:\n  x = 3\nelse:\n  x = 4\n"
	tree := mustParse(t, src)
	n := tree.Root.Children[0]
	if got := len(n.ChildrenOf(ElifClause)); got != 2 {
		t.Errorf("elif clauses = %d, want 2", got)
	}
	if n.Child(ElseClause) == nil {
		t.Error("missing else clause")
	}
}

func TestParseMethodBody(t *testing.T) {
	src := `class C(object):
  n:int = 0
  def get(self: C) -> int:
    x:int = 1
    return self.n + x
`
	tree := mustParse(t, src)
	class := tree.Root.Children[0]
	body := class.Child(Body)
	if len(body.Children) != 2 {
		t.Fatalf("class body = %d statements, want 2", len(body.Children))
	}
	fn := body.Children[1]
	params := fn.Child(ParamList)
	if len(params.Children) != 1 {
		t.Fatalf("params = %d, want 1", len(params.Children))
	}
	if ret := fn.Child(TypeDef); ret == nil || tree.Text(ret.Children[0]) != "int" {
		t.Error("missing return annotation")
	}
}

func TestParseInlineBody(t *testing.T) {
	tree := mustParse(t, "class C(object): pass\n")
	body := tree.Root.Children[0].Child(Body)
	if body == nil || body.Children[0].Kind != PassStatement {
		t.Fatal("expected inline pass body")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"x = ", "unexpected NEWLINE"},
		{"  x = 1", "unexpected indent"},
		{"if x:\npass", "expected INDENT"},
		{"a = b = c", "chained assignment"},
		{"f(1", "expected )"},
		{"x = 'abc", "unterminated string"},
		{"x = 1 $ 2", "unexpected character"},
	}
	for _, tc := range tests {
		_, err := Parse(tc.input)
		if err == nil {
			t.Errorf("%q: expected error", tc.input)
			continue
		}
		var serr *Error
		if !errors.As(err, &serr) {
			t.Errorf("%q: error %T is not *Error", tc.input, err)
			continue
		}
		if !strings.Contains(serr.Msg, tc.msg) {
			t.Errorf("%q: message %q does not contain %q", tc.input, serr.Msg, tc.msg)
		}
	}
}

func TestTreePosition(t *testing.T) {
	tree := mustParse(t, "x = 1\ny = x\n")
	second := tree.Root.Children[1]
	pos := tree.Position(second.From)
	if pos.Line != 2 || pos.Column != 1 {
		t.Errorf("position = %+v, want 2:1", pos)
	}
	value := second.Children[1]
	if pos := tree.Position(value.From); pos.Column != 5 {
		t.Errorf("value column = %d, want 5", pos.Column)
	}
}

func TestTreeDump(t *testing.T) {
	tree := mustParse(t, "x = 1")
	dump := tree.Dump()
	for _, want := range []string{"Script", "AssignStatement", `VariableName "x"`, `Number "1"`} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
}
