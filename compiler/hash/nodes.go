package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go with no Span data,
// no parentheses, and slot indices instead of local variable names. Two
// programs that differ only in local names produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

// HType is a static type.
type HType struct {
	Tag  byte // TypeTagNumber, TypeTagBool, TypeTagNone or TypeTagClass
	Name string
}

// ---------------------------------------------------------------------------
// Literal and reference nodes
// ---------------------------------------------------------------------------

type HNumber struct{ Value int32 }
type HBool struct{ Value bool }
type HNone struct{}

// HLocalRef references self, a parameter or a local by its slot.
type HLocalRef struct{ Slot uint16 }

// HGlobalRef references a top-level variable by name.
type HGlobalRef struct{ Name string }

func (*HNumber) hnode()    {}
func (*HBool) hnode()      {}
func (*HNone) hnode()      {}
func (*HLocalRef) hnode()  {}
func (*HGlobalRef) hnode() {}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

type HUnary struct {
	Op      string
	Operand HNode
}

type HBinary struct {
	Op    string
	Left  HNode
	Right HNode
}

type HPrint struct{ Arg HNode }

type HConstruct struct{ Class string }

type HMember struct {
	Object HNode
	Field  string
}

type HMethodCall struct {
	Object HNode
	Method string
	Args   []HNode
}

type HCall struct {
	Func string
	Args []HNode
}

func (*HUnary) hnode()      {}
func (*HBinary) hnode()     {}
func (*HPrint) hnode()      {}
func (*HConstruct) hnode()  {}
func (*HMember) hnode()     {}
func (*HMethodCall) hnode() {}
func (*HCall) hnode()       {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

type HAssign struct {
	Target HNode // HLocalRef or HGlobalRef
	Value  HNode
}

type HMemberAssign struct {
	Object HNode
	Field  string
	Value  HNode
}

type HIf struct {
	Cond HNode
	Then []HNode
	Else []HNode
}

// HReturn has a nil Value for a bare return.
type HReturn struct{ Value HNode }

type HPass struct{}

type HExprStmt struct{ Expr HNode }

func (*HAssign) hnode()       {}
func (*HMemberAssign) hnode() {}
func (*HIf) hnode()           {}
func (*HReturn) hnode()       {}
func (*HPass) hnode()         {}
func (*HExprStmt) hnode()     {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// HVarDef keeps its name only at top level and in class fields; locals are
// anonymous slots.
type HVarDef struct {
	Name string
	Type HType
	Init HNode
}

// HMethod is a method or function body. Params excludes self.
type HMethod struct {
	Name   string
	Params []HType
	Return HType
	Locals []*HVarDef
	Stmts  []HNode
}

type HClassDef struct {
	Name    string
	Fields  []*HVarDef
	Methods []*HMethod
}

type HFuncDef struct{ *HMethod }

type HProgram struct {
	Decls []HNode
	Stmts []HNode
}

func (*HVarDef) hnode()   {}
func (*HMethod) hnode()   {}
func (*HClassDef) hnode() {}
func (*HFuncDef) hnode()  {}
func (*HProgram) hnode()  {}
