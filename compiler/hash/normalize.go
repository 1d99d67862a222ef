package hash

import (
	"github.com/chazu/pywat/compiler"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Locals, parameters and self become slot references; top-level names stay
// by name because they are bound in the environment, not the program.
// ---------------------------------------------------------------------------

// normalizer holds the slots of the body being walked. slots is nil at top
// level.
type normalizer struct {
	slots map[string]uint16
}

// NormalizeProgram transforms a compiler Program into a frozen HProgram.
func NormalizeProgram(prog *compiler.Program) *HProgram {
	n := &normalizer{}
	out := &HProgram{
		Decls: make([]HNode, len(prog.Decls)),
		Stmts: n.normalizeStmts(prog.Stmts),
	}
	for i, d := range prog.Decls {
		out.Decls[i] = n.normalizeDecl(d)
	}
	return out
}

func (n *normalizer) normalizeDecl(d compiler.Decl) HNode {
	switch d := d.(type) {
	case *compiler.VarDef:
		return n.normalizeVarDef(d, d.Name)
	case *compiler.ClassDef:
		cls := &HClassDef{Name: d.Name}
		for _, f := range d.Fields {
			cls.Fields = append(cls.Fields, n.normalizeVarDef(f, f.Name))
		}
		for _, m := range d.Methods {
			cls.Methods = append(cls.Methods, n.normalizeBody(m.Name, true, m.Params, m.Return, m.Body))
		}
		return cls
	case *compiler.FuncDef:
		return &HFuncDef{n.normalizeBody(d.Name, false, d.Params, d.Return, d.Body)}
	}
	return &HNone{}
}

func (n *normalizer) normalizeVarDef(v *compiler.VarDef, name string) *HVarDef {
	return &HVarDef{Name: name, Type: normalizeType(v.Type), Init: n.normalizeExpr(v.Init)}
}

// normalizeBody numbers self (for methods), then parameters, then locals.
func (n *normalizer) normalizeBody(name string, method bool, params []*compiler.Param, ret compiler.Type, body *compiler.Body) *HMethod {
	n.slots = make(map[string]uint16)
	defer func() { n.slots = nil }()

	if method {
		n.slots["self"] = 0
	}
	out := &HMethod{Name: name, Return: normalizeType(ret)}
	for _, p := range params {
		n.slots[p.Name] = uint16(len(n.slots))
		out.Params = append(out.Params, normalizeType(p.Type))
	}
	for _, v := range body.Locals {
		// The initializer may refer to earlier locals only.
		local := n.normalizeVarDef(v, "")
		n.slots[v.Name] = uint16(len(n.slots))
		out.Locals = append(out.Locals, local)
	}
	out.Stmts = n.normalizeStmts(body.Stmts)
	return out
}

func normalizeType(t compiler.Type) HType {
	switch t.Kind {
	case compiler.TypeNumber:
		return HType{Tag: TypeTagNumber}
	case compiler.TypeBool:
		return HType{Tag: TypeTagBool}
	case compiler.TypeNone:
		return HType{Tag: TypeTagNone}
	}
	return HType{Tag: TypeTagClass, Name: t.Name}
}

// ---------------------------------------------------------------------------
// Statement normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeStmts(stmts []compiler.Stmt) []HNode {
	out := make([]HNode, len(stmts))
	for i, s := range stmts {
		out[i] = n.normalizeStmt(s)
	}
	return out
}

func (n *normalizer) normalizeStmt(stmt compiler.Stmt) HNode {
	switch s := stmt.(type) {
	case *compiler.AssignStmt:
		return &HAssign{Target: n.ref(s.Target), Value: n.normalizeExpr(s.Value)}
	case *compiler.MemberAssignStmt:
		return &HMemberAssign{Object: n.normalizeExpr(s.Object), Field: s.Field, Value: n.normalizeExpr(s.Value)}
	case *compiler.IfStmt:
		return &HIf{Cond: n.normalizeExpr(s.Cond), Then: n.normalizeStmts(s.Then), Else: n.normalizeStmts(s.Else)}
	case *compiler.ReturnStmt:
		if s.Value == nil {
			return &HReturn{}
		}
		return &HReturn{Value: n.normalizeExpr(s.Value)}
	case *compiler.PassStmt:
		return &HPass{}
	case *compiler.ExprStmt:
		return &HExprStmt{Expr: n.normalizeExpr(s.Expr)}
	}
	return &HPass{}
}

// ---------------------------------------------------------------------------
// Expression normalization
// ---------------------------------------------------------------------------

func (n *normalizer) ref(name string) HNode {
	if slot, ok := n.slots[name]; ok {
		return &HLocalRef{Slot: slot}
	}
	return &HGlobalRef{Name: name}
}

func (n *normalizer) normalizeExprs(exprs []compiler.Expr) []HNode {
	out := make([]HNode, len(exprs))
	for i, e := range exprs {
		out[i] = n.normalizeExpr(e)
	}
	return out
}

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.NumberLit:
		return &HNumber{Value: e.Value}
	case *compiler.BoolLit:
		return &HBool{Value: e.Value}
	case *compiler.NoneLit:
		return &HNone{}
	case *compiler.ObjectLit:
		return n.ref(e.Name)
	case *compiler.Ident:
		return n.ref(e.Name)
	case *compiler.UnaryExpr:
		return &HUnary{Op: e.Op.String(), Operand: n.normalizeExpr(e.Operand)}
	case *compiler.BinaryExpr:
		return &HBinary{Op: e.Op.String(), Left: n.normalizeExpr(e.Left), Right: n.normalizeExpr(e.Right)}
	case *compiler.ParenExpr:
		return n.normalizeExpr(e.Inner)
	case *compiler.PrintExpr:
		return &HPrint{Arg: n.normalizeExpr(e.Arg)}
	case *compiler.ConstructExpr:
		return &HConstruct{Class: e.Class}
	case *compiler.MemberExpr:
		return &HMember{Object: n.normalizeExpr(e.Object), Field: e.Field}
	case *compiler.MethodCallExpr:
		return &HMethodCall{Object: n.normalizeExpr(e.Object), Method: e.Method, Args: n.normalizeExprs(e.Args)}
	case *compiler.CallExpr:
		return &HCall{Func: e.Func, Args: n.normalizeExprs(e.Args)}
	}
	return &HNone{}
}
