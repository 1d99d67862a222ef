package syntax

import "fmt"

// ---------------------------------------------------------------------------
// Parser: recursive descent recognizer producing a concrete syntax tree
// ---------------------------------------------------------------------------

// Error is a grammar-level failure at a source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Parser builds a Tree from tokens. The tree accepts more than the compiler
// supports (strings, while loops, boolean connectives, keyword arguments);
// rejecting those is left to consumers.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	err       *Error
	input     string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), input: input}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete source file.
func Parse(input string) (*Tree, error) {
	p := NewParser(input)
	root := p.ParseScript()
	if p.err != nil {
		return nil, p.err
	}
	return newTree(input, root), nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) failed() bool {
	return p.err != nil
}

// errorf records the first error; later ones are consequences of it.
func (p *Parser) errorf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	p.err = &Error{Pos: p.curToken.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected(context string) {
	if p.curTokenIs(TokenError) {
		p.errorf("%s", p.curToken.Literal)
		return
	}
	p.errorf("unexpected %s %s", p.curToken.Type, context)
}

func (p *Parser) expect(t TokenType) (Token, bool) {
	tok := p.curToken
	if !p.curTokenIs(t) {
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
		} else {
			p.errorf("expected %s, got %s", t, p.curToken.Type)
		}
		return tok, false
	}
	p.nextToken()
	return tok, true
}

func leaf(kind Kind, tok Token) *Node {
	return &Node{Kind: kind, From: tok.Pos.Offset, To: tok.End}
}

func wrap(kind Kind, children ...*Node) *Node {
	n := &Node{Kind: kind, Children: children}
	if len(children) > 0 {
		n.From = children[0].From
		n.To = children[len(children)-1].To
	}
	return n
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseScript parses statements until EOF.
func (p *Parser) ParseScript() *Node {
	root := &Node{Kind: Script, From: 0, To: len(p.input)}
	for !p.curTokenIs(TokenEOF) && !p.failed() {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt == nil {
			break
		}
		root.Children = append(root.Children, stmt)
	}
	return root
}

func (p *Parser) parseStatement() *Node {
	switch p.curToken.Type {
	case TokenClass:
		return p.parseClass()
	case TokenDef:
		return p.parseFunction()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenIndent:
		p.errorf("unexpected indent")
		return nil
	}
	stmt := p.parseSimple()
	if stmt == nil {
		return nil
	}
	if _, ok := p.expect(TokenNewline); !ok {
		return nil
	}
	return stmt
}

func (p *Parser) parseSimple() *Node {
	switch p.curToken.Type {
	case TokenPass:
		n := leaf(PassStatement, p.curToken)
		p.nextToken()
		return n

	case TokenReturn:
		n := leaf(ReturnStatement, p.curToken)
		p.nextToken()
		if p.curTokenIs(TokenNewline) || p.curTokenIs(TokenEOF) {
			return n
		}
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		n.Children = []*Node{value}
		n.To = value.To
		return n
	}

	target := p.parseExpression()
	if target == nil {
		return nil
	}

	switch {
	case p.curTokenIs(TokenColon):
		colon := p.curToken
		p.nextToken()
		typ := p.parseTypeName()
		if typ == nil {
			return nil
		}
		td := &Node{Kind: TypeDef, From: colon.Pos.Offset, To: typ.To, Children: []*Node{typ}}
		if !p.curTokenIs(TokenAssign) {
			return wrap(AssignStatement, target, td)
		}
		p.nextToken()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		return wrap(AssignStatement, target, td, value)

	case p.curTokenIs(TokenAssign):
		p.nextToken()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		if p.curTokenIs(TokenAssign) {
			p.errorf("chained assignment is not supported")
			return nil
		}
		return wrap(AssignStatement, target, value)
	}

	return wrap(ExpressionStatement, target)
}

func (p *Parser) parseTypeName() *Node {
	var n *Node
	switch p.curToken.Type {
	case TokenName:
		n = leaf(VariableName, p.curToken)
	case TokenNone:
		n = leaf(None, p.curToken)
	case TokenString:
		n = leaf(String, p.curToken)
	default:
		p.unexpected("where a type was expected")
		return nil
	}
	p.nextToken()
	return n
}

// parseBody parses the block after a ':'. A block is either an indented
// suite or a single simple statement on the same line.
func (p *Parser) parseBody() *Node {
	if _, ok := p.expect(TokenColon); !ok {
		return nil
	}
	if !p.curTokenIs(TokenNewline) {
		stmt := p.parseSimple()
		if stmt == nil {
			return nil
		}
		if _, ok := p.expect(TokenNewline); !ok {
			return nil
		}
		return wrap(Body, stmt)
	}
	p.nextToken()
	if _, ok := p.expect(TokenIndent); !ok {
		return nil
	}
	body := &Node{Kind: Body}
	for !p.curTokenIs(TokenDedent) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt == nil {
			return nil
		}
		body.Children = append(body.Children, stmt)
	}
	if _, ok := p.expect(TokenDedent); !ok {
		return nil
	}
	if len(body.Children) == 0 {
		p.errorf("expected an indented block")
		return nil
	}
	body.From = body.Children[0].From
	body.To = body.Children[len(body.Children)-1].To
	return body
}

func (p *Parser) parseClass() *Node {
	start := p.curToken.Pos.Offset
	p.nextToken()
	nameTok, ok := p.expect(TokenName)
	if !ok {
		return nil
	}
	n := &Node{Kind: ClassDefinition, From: start, Children: []*Node{leaf(VariableName, nameTok)}}
	if p.curTokenIs(TokenLParen) {
		args := p.parseArgList()
		if args == nil {
			return nil
		}
		n.Children = append(n.Children, args)
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	n.Children = append(n.Children, body)
	n.To = body.To
	return n
}

func (p *Parser) parseFunction() *Node {
	start := p.curToken.Pos.Offset
	p.nextToken()
	nameTok, ok := p.expect(TokenName)
	if !ok {
		return nil
	}
	n := &Node{Kind: FunctionDefinition, From: start, Children: []*Node{leaf(VariableName, nameTok)}}

	open, ok := p.expect(TokenLParen)
	if !ok {
		return nil
	}
	params := &Node{Kind: ParamList, From: open.Pos.Offset}
	for !p.curTokenIs(TokenRParen) {
		param := p.parseParam()
		if param == nil {
			return nil
		}
		params.Children = append(params.Children, param)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	closeTok, ok := p.expect(TokenRParen)
	if !ok {
		return nil
	}
	params.To = closeTok.End
	n.Children = append(n.Children, params)

	if p.curTokenIs(TokenArrow) {
		arrow := p.curToken
		p.nextToken()
		typ := p.parseTypeName()
		if typ == nil {
			return nil
		}
		n.Children = append(n.Children, &Node{Kind: TypeDef, From: arrow.Pos.Offset, To: typ.To, Children: []*Node{typ}})
	}

	body := p.parseBody()
	if body == nil {
		return nil
	}
	n.Children = append(n.Children, body)
	n.To = body.To
	return n
}

func (p *Parser) parseParam() *Node {
	nameTok, ok := p.expect(TokenName)
	if !ok {
		return nil
	}
	name := leaf(VariableName, nameTok)
	if !p.curTokenIs(TokenColon) {
		return wrap(Param, name)
	}
	colon := p.curToken
	p.nextToken()
	typ := p.parseTypeName()
	if typ == nil {
		return nil
	}
	return wrap(Param, name, &Node{Kind: TypeDef, From: colon.Pos.Offset, To: typ.To, Children: []*Node{typ}})
}

func (p *Parser) parseIf() *Node {
	start := p.curToken.Pos.Offset
	p.nextToken()
	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	n := &Node{Kind: IfStatement, From: start, To: body.To, Children: []*Node{cond, body}}

	for p.curTokenIs(TokenElif) {
		clauseStart := p.curToken.Pos.Offset
		p.nextToken()
		cond := p.parseExpression()
		if cond == nil {
			return nil
		}
		body := p.parseBody()
		if body == nil {
			return nil
		}
		n.Children = append(n.Children, &Node{Kind: ElifClause, From: clauseStart, To: body.To, Children: []*Node{cond, body}})
		n.To = body.To
	}

	if p.curTokenIs(TokenElse) {
		clauseStart := p.curToken.Pos.Offset
		p.nextToken()
		body := p.parseBody()
		if body == nil {
			return nil
		}
		n.Children = append(n.Children, &Node{Kind: ElseClause, From: clauseStart, To: body.To, Children: []*Node{body}})
		n.To = body.To
	}
	return n
}

func (p *Parser) parseWhile() *Node {
	start := p.curToken.Pos.Offset
	p.nextToken()
	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return &Node{Kind: WhileStatement, From: start, To: body.To, Children: []*Node{cond, body}}
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() *Node {
	return p.parseOr()
}

func (p *Parser) parseOr() *Node {
	left := p.parseAnd()
	for left != nil && p.curTokenIs(TokenOr) {
		op := leaf(Op, p.curToken)
		p.nextToken()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = wrap(BinaryExpression, left, op, right)
	}
	return left
}

func (p *Parser) parseAnd() *Node {
	left := p.parseNot()
	for left != nil && p.curTokenIs(TokenAnd) {
		op := leaf(Op, p.curToken)
		p.nextToken()
		right := p.parseNot()
		if right == nil {
			return nil
		}
		left = wrap(BinaryExpression, left, op, right)
	}
	return left
}

func (p *Parser) parseNot() *Node {
	if !p.curTokenIs(TokenNot) {
		return p.parseComparison()
	}
	op := leaf(Op, p.curToken)
	p.nextToken()
	operand := p.parseNot()
	if operand == nil {
		return nil
	}
	return wrap(UnaryExpression, op, operand)
}

func isComparison(t TokenType) bool {
	switch t {
	case TokenEq, TokenNe, TokenLe, TokenGe, TokenLt, TokenGt, TokenIs:
		return true
	}
	return false
}

// parseComparison keeps chains flat: a < b < c has five children.
func (p *Parser) parseComparison() *Node {
	left := p.parseArith()
	if left == nil || !isComparison(p.curToken.Type) {
		return left
	}
	children := []*Node{left}
	for isComparison(p.curToken.Type) {
		op := leaf(Op, p.curToken)
		if p.curTokenIs(TokenIs) && p.peekTokenIs(TokenNot) {
			p.nextToken()
			op.To = p.curToken.End
		}
		p.nextToken()
		right := p.parseArith()
		if right == nil {
			return nil
		}
		children = append(children, op, right)
	}
	return wrap(BinaryExpression, children...)
}

func (p *Parser) parseArith() *Node {
	left := p.parseTerm()
	for left != nil && (p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus)) {
		op := leaf(Op, p.curToken)
		p.nextToken()
		right := p.parseTerm()
		if right == nil {
			return nil
		}
		left = wrap(BinaryExpression, left, op, right)
	}
	return left
}

func (p *Parser) parseTerm() *Node {
	left := p.parseFactor()
	for left != nil {
		switch p.curToken.Type {
		case TokenStar, TokenFloorDiv, TokenSlash, TokenPercent:
		default:
			return left
		}
		op := leaf(Op, p.curToken)
		p.nextToken()
		right := p.parseFactor()
		if right == nil {
			return nil
		}
		left = wrap(BinaryExpression, left, op, right)
	}
	return left
}

func (p *Parser) parseFactor() *Node {
	if !p.curTokenIs(TokenMinus) && !p.curTokenIs(TokenPlus) {
		return p.parsePostfix()
	}
	op := leaf(Op, p.curToken)
	p.nextToken()
	operand := p.parseFactor()
	if operand == nil {
		return nil
	}
	return wrap(UnaryExpression, op, operand)
}

func (p *Parser) parsePostfix() *Node {
	expr := p.parseAtom()
	for expr != nil {
		switch {
		case p.curTokenIs(TokenDot):
			p.nextToken()
			nameTok, ok := p.expect(TokenName)
			if !ok {
				return nil
			}
			expr = wrap(MemberExpression, expr, leaf(PropertyName, nameTok))
		case p.curTokenIs(TokenLParen):
			args := p.parseArgList()
			if args == nil {
				return nil
			}
			expr = wrap(CallExpression, expr, args)
		default:
			return expr
		}
	}
	return nil
}

func (p *Parser) parseArgList() *Node {
	open, ok := p.expect(TokenLParen)
	if !ok {
		return nil
	}
	args := &Node{Kind: ArgList, From: open.Pos.Offset}
	for !p.curTokenIs(TokenRParen) {
		var arg *Node
		if p.curTokenIs(TokenName) && p.peekTokenIs(TokenAssign) {
			name := leaf(VariableName, p.curToken)
			p.nextToken()
			p.nextToken()
			value := p.parseExpression()
			if value == nil {
				return nil
			}
			arg = wrap(KeywordArgument, name, value)
		} else {
			arg = p.parseExpression()
			if arg == nil {
				return nil
			}
		}
		args.Children = append(args.Children, arg)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	closeTok, ok := p.expect(TokenRParen)
	if !ok {
		return nil
	}
	args.To = closeTok.End
	return args
}

func (p *Parser) parseAtom() *Node {
	tok := p.curToken
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		return leaf(Number, tok)
	case TokenString:
		p.nextToken()
		return leaf(String, tok)
	case TokenTrue, TokenFalse:
		p.nextToken()
		return leaf(Boolean, tok)
	case TokenNone:
		p.nextToken()
		return leaf(None, tok)
	case TokenName:
		p.nextToken()
		return leaf(VariableName, tok)
	case TokenLParen:
		p.nextToken()
		inner := p.parseExpression()
		if inner == nil {
			return nil
		}
		closeTok, ok := p.expect(TokenRParen)
		if !ok {
			return nil
		}
		return &Node{Kind: ParenthesizedExpression, From: tok.Pos.Offset, To: closeTok.End, Children: []*Node{inner}}
	}
	p.unexpected("in expression")
	return nil
}
