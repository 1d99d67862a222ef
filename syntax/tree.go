package syntax

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a concrete syntax node type.
type Kind string

const (
	Script              Kind = "Script"
	AssignStatement     Kind = "AssignStatement"
	TypeDef             Kind = "TypeDef"
	ClassDefinition     Kind = "ClassDefinition"
	FunctionDefinition  Kind = "FunctionDefinition"
	ParamList           Kind = "ParamList"
	Param               Kind = "Param"
	Body                Kind = "Body"
	IfStatement         Kind = "IfStatement"
	ElifClause          Kind = "ElifClause"
	ElseClause          Kind = "ElseClause"
	WhileStatement      Kind = "WhileStatement"
	PassStatement       Kind = "PassStatement"
	ReturnStatement     Kind = "ReturnStatement"
	ExpressionStatement Kind = "ExpressionStatement"

	Number                  Kind = "Number"
	String                  Kind = "String"
	Boolean                 Kind = "Boolean"
	None                    Kind = "None"
	VariableName            Kind = "VariableName"
	PropertyName            Kind = "PropertyName"
	UnaryExpression         Kind = "UnaryExpression"
	BinaryExpression        Kind = "BinaryExpression"
	ParenthesizedExpression Kind = "ParenthesizedExpression"
	MemberExpression        Kind = "MemberExpression"
	CallExpression          Kind = "CallExpression"
	ArgList                 Kind = "ArgList"
	KeywordArgument         Kind = "KeywordArgument"
	Op                      Kind = "Op"
)

// Node is a concrete syntax node. From and To are byte offsets into the
// source; leaves have no children.
type Node struct {
	Kind     Kind
	From, To int
	Children []*Node
}

// Child returns the first direct child of the given kind, or nil.
func (n *Node) Child(kind Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all direct children of the given kind.
func (n *Node) ChildrenOf(kind Kind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Tree is a parsed source file.
type Tree struct {
	Source string
	Root   *Node

	lineStarts []int
}

func newTree(src string, root *Node) *Tree {
	t := &Tree{Source: src, Root: root, lineStarts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			t.lineStarts = append(t.lineStarts, i+1)
		}
	}
	return t
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *Node) string {
	from, to := clamp(n.From, len(t.Source)), clamp(n.To, len(t.Source))
	return t.Source[from:to]
}

// Position maps a byte offset to a 1-based line and column.
func (t *Tree) Position(offset int) Position {
	offset = clamp(offset, len(t.Source))
	line := sort.Search(len(t.lineStarts), func(i int) bool { return t.lineStarts[i] > offset })
	return Position{
		Offset: offset,
		Line:   line,
		Column: offset - t.lineStarts[line-1] + 1,
	}
}

// Dump renders the tree in an indented one-node-per-line form.
func (t *Tree) Dump() string {
	var b strings.Builder
	t.dump(&b, t.Root, 0)
	return b.String()
}

func (t *Tree) dump(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if len(n.Children) == 0 {
		fmt.Fprintf(b, "%s %q\n", n.Kind, t.Text(n))
		return
	}
	fmt.Fprintf(b, "%s [%d..%d]\n", n.Kind, n.From, n.To)
	for _, c := range n.Children {
		t.dump(b, c, depth+1)
	}
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
