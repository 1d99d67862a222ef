package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: typed Python subset
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// TypeKind is the tag of a static type.
type TypeKind int

const (
	TypeNumber TypeKind = iota
	TypeBool
	TypeNone
	TypeClass
)

// Type is a static type. Name is set only for class types.
type Type struct {
	Kind TypeKind
	Name string
}

var (
	NumberType = Type{Kind: TypeNumber}
	BoolType   = Type{Kind: TypeBool}
	NoneType   = Type{Kind: TypeNone}
)

// ClassType returns the nominal type of the named class.
func ClassType(name string) Type {
	return Type{Kind: TypeClass, Name: name}
}

// Equal is structural for primitives and nominal for classes.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	return t.Kind != TypeClass || t.Name == o.Name
}

// IsClass reports whether t is a class type.
func (t Type) IsClass() bool { return t.Kind == TypeClass }

func (t Type) String() string {
	switch t.Kind {
	case TypeNumber:
		return "int"
	case TypeBool:
		return "bool"
	case TypeNone:
		return "None"
	case TypeClass:
		return t.Name
	}
	return fmt.Sprintf("Type(%d)", t.Kind)
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Literal is an expression usable as a declaration initializer.
type Literal interface {
	Expr
	literal()
}

// NumberLit is an integer literal.
type NumberLit struct {
	SpanVal Span
	Value   int32
}

func (n *NumberLit) Span() Span { return n.SpanVal }
func (n *NumberLit) node()      {}
func (n *NumberLit) expr()      {}
func (n *NumberLit) literal()   {}

// BoolLit is True or False.
type BoolLit struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLit) Span() Span { return n.SpanVal }
func (n *BoolLit) node()      {}
func (n *BoolLit) expr()      {}
func (n *BoolLit) literal()   {}

// NoneLit is None.
type NoneLit struct {
	SpanVal Span
}

func (n *NoneLit) Span() Span { return n.SpanVal }
func (n *NoneLit) node()      {}
func (n *NoneLit) expr()      {}
func (n *NoneLit) literal()   {}

// ObjectLit names an existing object in a declaration (y:C = x), making
// the declared name an alias of it.
type ObjectLit struct {
	SpanVal Span
	Name    string
}

func (n *ObjectLit) Span() Span { return n.SpanVal }
func (n *ObjectLit) node()      {}
func (n *ObjectLit) expr()      {}
func (n *ObjectLit) literal()   {}

// Ident is a variable reference, including self.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "not"
	}
	return "-"
}

// UnaryExpr applies a prefix operator.
type UnaryExpr struct {
	SpanVal Span
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryOp is an infix operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpFloorDiv
	OpMod
	OpEq
	OpNe
	OpLe
	OpGe
	OpLt
	OpGt
	OpIs
)

var binaryOpNames = [...]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpFloorDiv: "//",
	OpMod:      "%",
	OpEq:       "==",
	OpNe:       "!=",
	OpLe:       "<=",
	OpGe:       ">=",
	OpLt:       "<",
	OpGt:       ">",
	OpIs:       "is",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsArithmetic reports whether op is one of + - * // %.
func (op BinaryOp) IsArithmetic() bool { return op <= OpMod }

// IsOrdering reports whether op is one of <= >= < >.
func (op BinaryOp) IsOrdering() bool { return op >= OpLe && op <= OpGt }

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	SpanVal Span
	Op      BinaryOp
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// ParenExpr is a parenthesized expression.
type ParenExpr struct {
	SpanVal Span
	Inner   Expr
}

func (n *ParenExpr) Span() Span { return n.SpanVal }
func (n *ParenExpr) node()      {}
func (n *ParenExpr) expr()      {}

// PrintExpr is the print built-in applied to one argument.
type PrintExpr struct {
	SpanVal Span
	Arg     Expr
}

func (n *PrintExpr) Span() Span { return n.SpanVal }
func (n *PrintExpr) node()      {}
func (n *PrintExpr) expr()      {}

// ConstructExpr creates a new instance: C().
type ConstructExpr struct {
	SpanVal Span
	Class   string
}

func (n *ConstructExpr) Span() Span { return n.SpanVal }
func (n *ConstructExpr) node()      {}
func (n *ConstructExpr) expr()      {}

// MemberExpr reads a field: obj.field.
type MemberExpr struct {
	SpanVal Span
	Object  Expr
	Field   string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// MethodCallExpr calls a method: obj.method(args).
type MethodCallExpr struct {
	SpanVal Span
	Object  Expr
	Method  string
	Args    []Expr
}

func (n *MethodCallExpr) Span() Span { return n.SpanVal }
func (n *MethodCallExpr) node()      {}
func (n *MethodCallExpr) expr()      {}

// CallExpr calls a top-level function: f(args).
type CallExpr struct {
	SpanVal Span
	Func    string
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// AssignStmt assigns to a variable: x = e.
type AssignStmt struct {
	SpanVal Span
	Target  string
	Value   Expr
}

func (n *AssignStmt) Span() Span { return n.SpanVal }
func (n *AssignStmt) node()      {}
func (n *AssignStmt) stmt()      {}

// MemberAssignStmt assigns to a field: obj.f = e.
type MemberAssignStmt struct {
	SpanVal Span
	Object  Expr
	Field   string
	Value   Expr
}

func (n *MemberAssignStmt) Span() Span { return n.SpanVal }
func (n *MemberAssignStmt) node()      {}
func (n *MemberAssignStmt) stmt()      {}

// IfStmt is a conditional. An elif chain is a nested IfStmt in Else.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// ReturnStmt returns from a function or method. Value may be nil.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// PassStmt does nothing.
type PassStmt struct {
	SpanVal Span
}

func (n *PassStmt) Span() Span { return n.SpanVal }
func (n *PassStmt) node()      {}
func (n *PassStmt) stmt()      {}

// ExprStmt evaluates an expression.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Decl is a top-level declaration.
type Decl interface {
	Node
	decl() // marker method
}

// VarDef declares a typed variable with a literal initializer.
type VarDef struct {
	SpanVal Span
	Name    string
	Type    Type
	Init    Literal
}

func (n *VarDef) Span() Span { return n.SpanVal }
func (n *VarDef) node()      {}
func (n *VarDef) decl()      {}

// Param is a typed function or method parameter.
type Param struct {
	SpanVal Span
	Name    string
	Type    Type
}

// Body is a function or method body: local declarations then statements.
type Body struct {
	Locals []*VarDef
	Stmts  []Stmt
}

// MethodDef is a method of a class. Self is the owning class type.
type MethodDef struct {
	SpanVal Span
	Name    string
	Self    Type
	Params  []*Param
	Return  Type
	Body    *Body
}

func (n *MethodDef) Span() Span { return n.SpanVal }
func (n *MethodDef) node()      {}

// ClassDef is a flat class with fields and methods.
type ClassDef struct {
	SpanVal Span
	Name    string
	Fields  []*VarDef
	Methods []*MethodDef
}

func (n *ClassDef) Span() Span { return n.SpanVal }
func (n *ClassDef) node()      {}
func (n *ClassDef) decl()      {}

// FuncDef is a top-level function.
type FuncDef struct {
	SpanVal Span
	Name    string
	Params  []*Param
	Return  Type
	Body    *Body
}

func (n *FuncDef) Span() Span { return n.SpanVal }
func (n *FuncDef) node()      {}
func (n *FuncDef) decl()      {}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// Program is a compilation unit: declarations followed by statements.
type Program struct {
	SpanVal Span
	Decls   []Decl
	Stmts   []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
