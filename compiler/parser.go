package compiler

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/pywat/syntax"
)

// ---------------------------------------------------------------------------
// Parser: concrete syntax tree to AST
// ---------------------------------------------------------------------------

// Parser turns a syntax.Tree into a Program. It owns the set of class names
// known at each point of the walk; a class is known from the moment its
// definition starts, so its own body may refer to it but earlier code may not.
type Parser struct {
	tree    *syntax.Tree
	classes map[string]bool
}

// NewParser creates a parser over tree. known seeds the class set, which is
// how a REPL line sees classes committed by earlier lines.
func NewParser(tree *syntax.Tree, known []string) *Parser {
	p := &Parser{tree: tree, classes: make(map[string]bool)}
	for _, name := range known {
		p.classes[name] = true
	}
	return p
}

// Parse parses source with no previously known classes.
func Parse(source string) (*Program, error) {
	return ParseWithClasses(source, nil)
}

// ParseWithClasses parses source, treating the given names as classes.
func ParseWithClasses(source string, known []string) (*Program, error) {
	tree, err := syntax.Parse(source)
	if err != nil {
		var serr *syntax.Error
		if errors.As(err, &serr) {
			pos := Position(serr.Pos)
			return nil, parseErrorf(MakeSpan(pos, pos), "%s", serr.Msg)
		}
		return nil, err
	}
	return NewParser(tree, known).ParseProgram()
}

func (p *Parser) span(n *syntax.Node) Span {
	return MakeSpan(Position(p.tree.Position(n.From)), Position(p.tree.Position(n.To)))
}

func (p *Parser) text(n *syntax.Node) string {
	return p.tree.Text(n)
}

func isDeclaration(n *syntax.Node) bool {
	switch n.Kind {
	case syntax.ClassDefinition, syntax.FunctionDefinition:
		return true
	case syntax.AssignStatement:
		return n.Child(syntax.TypeDef) != nil
	}
	return false
}

// ParseProgram converts the whole tree.
func (p *Parser) ParseProgram() (*Program, error) {
	root := p.tree.Root
	prog := &Program{SpanVal: p.span(root)}
	for _, n := range root.Children {
		if !isDeclaration(n) {
			stmt, err := p.parseStmt(n)
			if err != nil {
				return nil, err
			}
			prog.Stmts = append(prog.Stmts, stmt)
			continue
		}
		if len(prog.Stmts) > 0 {
			return nil, parseErrorf(p.span(n), "declarations must come before statements")
		}
		decl, err := p.parseDecl(n)
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, decl)
	}
	return prog, nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseDecl(n *syntax.Node) (Decl, error) {
	switch n.Kind {
	case syntax.ClassDefinition:
		return p.parseClass(n)
	case syntax.FunctionDefinition:
		return p.parseFunc(n)
	}
	return p.parseVarDef(n)
}

func (p *Parser) parseVarDef(n *syntax.Node) (*VarDef, error) {
	target := n.Children[0]
	if target.Kind != syntax.VariableName {
		return nil, parseErrorf(p.span(target), "only a plain name can be declared with a type")
	}
	name := p.text(target)
	typ, err := p.parseType(n.Child(syntax.TypeDef).Children[0], false)
	if err != nil {
		return nil, err
	}
	if len(n.Children) < 3 {
		return nil, parseErrorf(p.span(n), "declaration of %q needs an initializer", name)
	}
	init, err := p.parseLiteral(n.Children[2])
	if err != nil {
		return nil, err
	}
	return &VarDef{SpanVal: p.span(n), Name: name, Type: typ, Init: init}, nil
}

func (p *Parser) parseLiteral(n *syntax.Node) (Literal, error) {
	switch n.Kind {
	case syntax.Number, syntax.Boolean, syntax.None:
		e, err := p.parseExpr(n)
		if err != nil {
			return nil, err
		}
		return e.(Literal), nil
	case syntax.UnaryExpression:
		if p.text(n.Children[0]) == "-" && n.Children[1].Kind == syntax.Number {
			return p.parseNumber(n.Children[1], p.span(n), true)
		}
	case syntax.VariableName:
		return &ObjectLit{SpanVal: p.span(n), Name: p.text(n)}, nil
	}
	return nil, parseErrorf(p.span(n), "a declaration must be initialized with a literal")
}

func (p *Parser) parseNumber(n *syntax.Node, span Span, negative bool) (*NumberLit, error) {
	text := strings.ReplaceAll(p.text(n), "_", "")
	if strings.Contains(text, ".") {
		return nil, parseErrorf(p.span(n), "floating-point numbers are not supported")
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if negative {
		v = -v
	}
	if err != nil || v > math.MaxInt32 || v < math.MinInt32 {
		return nil, parseErrorf(p.span(n), "integer literal %s is out of range", p.text(n))
	}
	return &NumberLit{SpanVal: span, Value: int32(v)}, nil
}

func (p *Parser) parseType(n *syntax.Node, allowNone bool) (Type, error) {
	switch n.Kind {
	case syntax.VariableName:
		name := p.text(n)
		switch {
		case name == "int":
			return NumberType, nil
		case name == "bool":
			return BoolType, nil
		case p.classes[name]:
			return ClassType(name), nil
		}
		return Type{}, parseErrorf(p.span(n), "unknown type %q", name)
	case syntax.None:
		if allowNone {
			return NoneType, nil
		}
		return Type{}, parseErrorf(p.span(n), "None is only allowed as a return type")
	}
	return Type{}, parseErrorf(p.span(n), "unsupported type annotation %s", p.text(n))
}

func (p *Parser) parseClass(n *syntax.Node) (*ClassDef, error) {
	name := p.text(n.Children[0])
	if args := n.Child(syntax.ArgList); args != nil {
		if len(args.Children) != 1 || p.text(args.Children[0]) != "object" {
			return nil, parseErrorf(p.span(args), "class %s must derive from object; inheritance is not supported", name)
		}
	}
	p.classes[name] = true

	class := &ClassDef{SpanVal: p.span(n), Name: name}
	for _, member := range n.Child(syntax.Body).Children {
		switch {
		case member.Kind == syntax.PassStatement:
		case member.Kind == syntax.FunctionDefinition:
			m, err := p.parseMethod(member, name)
			if err != nil {
				return nil, err
			}
			class.Methods = append(class.Methods, m)
		case member.Kind == syntax.AssignStatement && member.Child(syntax.TypeDef) != nil:
			field, err := p.parseVarDef(member)
			if err != nil {
				return nil, err
			}
			class.Fields = append(class.Fields, field)
		default:
			return nil, parseErrorf(p.span(member), "a class body may only contain fields and methods")
		}
	}
	return class, nil
}

func (p *Parser) parseMethod(n *syntax.Node, className string) (*MethodDef, error) {
	name := p.text(n.Children[0])
	params := n.Child(syntax.ParamList)
	if len(params.Children) == 0 || p.text(params.Children[0].Children[0]) != "self" {
		return nil, parseErrorf(p.span(params), "method %s must take self as its first parameter", name)
	}
	self := params.Children[0]
	td := self.Child(syntax.TypeDef)
	if td == nil {
		return nil, parseErrorf(p.span(self), "self must be annotated as %s", className)
	}
	selfType, err := p.parseType(td.Children[0], false)
	if err != nil {
		return nil, err
	}
	if !selfType.Equal(ClassType(className)) {
		return nil, parseErrorf(p.span(td), "self must be annotated as %s, not %s", className, selfType)
	}

	rest, err := p.parseParams(params.Children[1:])
	if err != nil {
		return nil, err
	}
	ret, err := p.parseReturnType(n)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody(n.Child(syntax.Body))
	if err != nil {
		return nil, err
	}
	return &MethodDef{
		SpanVal: p.span(n),
		Name:    name,
		Self:    selfType,
		Params:  rest,
		Return:  ret,
		Body:    body,
	}, nil
}

func (p *Parser) parseFunc(n *syntax.Node) (*FuncDef, error) {
	name := p.text(n.Children[0])
	if name == "print" {
		return nil, parseErrorf(p.span(n.Children[0]), "print cannot be redefined")
	}
	params, err := p.parseParams(n.Child(syntax.ParamList).Children)
	if err != nil {
		return nil, err
	}
	ret, err := p.parseReturnType(n)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody(n.Child(syntax.Body))
	if err != nil {
		return nil, err
	}
	return &FuncDef{SpanVal: p.span(n), Name: name, Params: params, Return: ret, Body: body}, nil
}

func (p *Parser) parseParams(nodes []*syntax.Node) ([]*Param, error) {
	var params []*Param
	for _, n := range nodes {
		name := p.text(n.Children[0])
		td := n.Child(syntax.TypeDef)
		if td == nil {
			return nil, parseErrorf(p.span(n), "parameter %q needs a type annotation", name)
		}
		typ, err := p.parseType(td.Children[0], false)
		if err != nil {
			return nil, err
		}
		params = append(params, &Param{SpanVal: p.span(n), Name: name, Type: typ})
	}
	return params, nil
}

func (p *Parser) parseReturnType(fn *syntax.Node) (Type, error) {
	td := fn.Child(syntax.TypeDef)
	if td == nil {
		return NoneType, nil
	}
	return p.parseType(td.Children[0], true)
}

func (p *Parser) parseBody(n *syntax.Node) (*Body, error) {
	body := &Body{}
	for _, c := range n.Children {
		switch {
		case c.Kind == syntax.ClassDefinition || c.Kind == syntax.FunctionDefinition:
			return nil, parseErrorf(p.span(c), "nested definitions are not supported")
		case isDeclaration(c):
			if len(body.Stmts) > 0 {
				return nil, parseErrorf(p.span(c), "local declarations must come before statements")
			}
			local, err := p.parseVarDef(c)
			if err != nil {
				return nil, err
			}
			body.Locals = append(body.Locals, local)
		default:
			stmt, err := p.parseStmt(c)
			if err != nil {
				return nil, err
			}
			body.Stmts = append(body.Stmts, stmt)
		}
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStmts(nodes []*syntax.Node) ([]Stmt, error) {
	var stmts []Stmt
	for _, n := range nodes {
		if isDeclaration(n) {
			return nil, parseErrorf(p.span(n), "declarations are not allowed inside a conditional")
		}
		stmt, err := p.parseStmt(n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) parseStmt(n *syntax.Node) (Stmt, error) {
	switch n.Kind {
	case syntax.AssignStatement:
		return p.parseAssign(n)

	case syntax.ExpressionStatement:
		e, err := p.parseExpr(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ExprStmt{SpanVal: p.span(n), Expr: e}, nil

	case syntax.PassStatement:
		return &PassStmt{SpanVal: p.span(n)}, nil

	case syntax.ReturnStatement:
		ret := &ReturnStmt{SpanVal: p.span(n)}
		if len(n.Children) > 0 {
			e, err := p.parseExpr(n.Children[0])
			if err != nil {
				return nil, err
			}
			ret.Value = e
		}
		return ret, nil

	case syntax.IfStatement:
		return p.parseIf(n, n.Children)

	case syntax.WhileStatement:
		return nil, parseErrorf(p.span(n), "while loops are not supported")
	}
	return nil, parseErrorf(p.span(n), "unexpected %s", n.Kind)
}

func (p *Parser) parseAssign(n *syntax.Node) (Stmt, error) {
	target, valueNode := n.Children[0], n.Children[1]
	value, err := p.parseExpr(valueNode)
	if err != nil {
		return nil, err
	}
	switch target.Kind {
	case syntax.VariableName:
		return &AssignStmt{SpanVal: p.span(n), Target: p.text(target), Value: value}, nil
	case syntax.MemberExpression:
		obj, err := p.parseExpr(target.Children[0])
		if err != nil {
			return nil, err
		}
		return &MemberAssignStmt{
			SpanVal: p.span(n),
			Object:  obj,
			Field:   p.text(target.Child(syntax.PropertyName)),
			Value:   value,
		}, nil
	}
	return nil, parseErrorf(p.span(target), "cannot assign to %s", p.text(target))
}

// parseIf builds an IfStmt from cond, body and any trailing elif/else
// clauses; each elif becomes an IfStmt nested in Else.
func (p *Parser) parseIf(n *syntax.Node, parts []*syntax.Node) (*IfStmt, error) {
	cond, err := p.parseExpr(parts[0])
	if err != nil {
		return nil, err
	}
	then, err := p.parseStmts(parts[1].Children)
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{SpanVal: p.span(n), Cond: cond, Then: then}
	if len(parts) == 2 {
		return stmt, nil
	}

	clause := parts[2]
	switch clause.Kind {
	case syntax.ElifClause:
		nested := append([]*syntax.Node{}, clause.Children...)
		nested = append(nested, parts[3:]...)
		elif, err := p.parseIf(clause, nested)
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{elif}
	case syntax.ElseClause:
		stmt.Else, err = p.parseStmts(clause.Child(syntax.Body).Children)
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[string]BinaryOp{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"//": OpFloorDiv,
	"%":  OpMod,
	"==": OpEq,
	"!=": OpNe,
	"<=": OpLe,
	">=": OpGe,
	"<":  OpLt,
	">":  OpGt,
	"is": OpIs,
}

func (p *Parser) parseExpr(n *syntax.Node) (Expr, error) {
	span := p.span(n)
	switch n.Kind {
	case syntax.Number:
		return p.parseNumber(n, span, false)

	case syntax.Boolean:
		return &BoolLit{SpanVal: span, Value: p.text(n) == "True"}, nil

	case syntax.None:
		return &NoneLit{SpanVal: span}, nil

	case syntax.VariableName:
		return &Ident{SpanVal: span, Name: p.text(n)}, nil

	case syntax.String:
		return nil, parseErrorf(span, "strings are not supported")

	case syntax.ParenthesizedExpression:
		inner, err := p.parseExpr(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ParenExpr{SpanVal: span, Inner: inner}, nil

	case syntax.UnaryExpression:
		return p.parseUnary(n)

	case syntax.BinaryExpression:
		return p.parseBinary(n)

	case syntax.MemberExpression:
		obj, err := p.parseExpr(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &MemberExpr{SpanVal: span, Object: obj, Field: p.text(n.Child(syntax.PropertyName))}, nil

	case syntax.CallExpression:
		return p.parseCall(n)
	}
	return nil, parseErrorf(span, "unsupported expression %s", p.text(n))
}

func (p *Parser) parseUnary(n *syntax.Node) (Expr, error) {
	span := p.span(n)
	op, operand := p.text(n.Children[0]), n.Children[1]
	switch op {
	case "not":
		e, err := p.parseExpr(operand)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{SpanVal: span, Op: OpNot, Operand: e}, nil
	case "-":
		if operand.Kind == syntax.Number {
			return p.parseNumber(operand, span, true)
		}
		e, err := p.parseExpr(operand)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{SpanVal: span, Op: OpNeg, Operand: e}, nil
	}
	return nil, parseErrorf(span, "unary %s is not supported", op)
}

func (p *Parser) parseBinary(n *syntax.Node) (Expr, error) {
	span := p.span(n)
	if len(n.Children) != 3 {
		return nil, parseErrorf(span, "chained comparisons are not supported")
	}
	opText := p.text(n.Children[1])
	op, ok := binaryOps[opText]
	if !ok {
		if opText == "/" {
			return nil, parseErrorf(p.span(n.Children[1]), "true division is not supported; use //")
		}
		return nil, parseErrorf(p.span(n.Children[1]), "operator %q is not supported", opText)
	}
	left, err := p.parseExpr(n.Children[0])
	if err != nil {
		return nil, err
	}
	right, err := p.parseExpr(n.Children[2])
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{SpanVal: span, Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseArgs(list *syntax.Node) ([]Expr, error) {
	var args []Expr
	for _, a := range list.Children {
		if a.Kind == syntax.KeywordArgument {
			return nil, parseErrorf(p.span(a), "keyword arguments are not supported")
		}
		e, err := p.parseExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return args, nil
}

func (p *Parser) parseCall(n *syntax.Node) (Expr, error) {
	span := p.span(n)
	callee, list := n.Children[0], n.Child(syntax.ArgList)
	args, err := p.parseArgs(list)
	if err != nil {
		return nil, err
	}

	switch callee.Kind {
	case syntax.VariableName:
		name := p.text(callee)
		switch {
		case name == "print":
			if len(args) != 1 {
				return nil, parseErrorf(span, "print takes exactly one argument, got %d", len(args))
			}
			return &PrintExpr{SpanVal: span, Arg: args[0]}, nil
		case p.classes[name]:
			if len(args) != 0 {
				return nil, parseErrorf(span, "%s() takes no arguments", name)
			}
			return &ConstructExpr{SpanVal: span, Class: name}, nil
		}
		return &CallExpr{SpanVal: span, Func: name, Args: args}, nil

	case syntax.MemberExpression:
		obj, err := p.parseExpr(callee.Children[0])
		if err != nil {
			return nil, err
		}
		return &MethodCallExpr{
			SpanVal: span,
			Object:  obj,
			Method:  p.text(callee.Child(syntax.PropertyName)),
			Args:    args,
		}, nil
	}
	return nil, parseErrorf(p.span(callee), "%s is not callable", p.text(callee))
}
