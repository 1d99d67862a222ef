package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Type checker: nominal static typing
// ---------------------------------------------------------------------------

// Checked is a program that passed type checking, with the facts code
// generation needs.
type Checked struct {
	Program *Program
	Result  Type          // type of the trailing top-level statement
	Types   map[Expr]Type // static type of every expression
	Classes map[string]*ClassInfo
	Funcs   map[string]*Signature
}

// TypeCheck checks prog against the declarations already in env. env is not
// modified.
func TypeCheck(prog *Program, env *GlobalEnv) (*Checked, error) {
	c := newChecker(env)
	if err := c.checkProgram(prog); err != nil {
		return nil, err
	}
	return &Checked{
		Program: prog,
		Result:  c.result,
		Types:   c.types,
		Classes: c.newClasses,
		Funcs:   c.newFuncs,
	}, nil
}

type checker struct {
	env *GlobalEnv

	globals map[string]Type
	classes map[string]*ClassInfo
	funcs   map[string]*Signature
	types   map[Expr]Type

	declared   map[string]bool
	newClasses map[string]*ClassInfo
	newFuncs   map[string]*Signature
	result     Type

	// Per-body state; locals is nil at top level.
	locals map[string]Type
	ret    *Type
}

func newChecker(env *GlobalEnv) *checker {
	c := &checker{
		env:        env,
		globals:    make(map[string]Type, len(env.Types)),
		classes:    make(map[string]*ClassInfo, len(env.Classes)),
		funcs:      make(map[string]*Signature, len(env.Funcs)),
		types:      make(map[Expr]Type),
		declared:   make(map[string]bool),
		newClasses: make(map[string]*ClassInfo),
		newFuncs:   make(map[string]*Signature),
		result:     NoneType,
	}
	for k, v := range env.Types {
		c.globals[k] = v
	}
	for k, v := range env.Classes {
		c.classes[k] = v
	}
	for k, v := range env.Funcs {
		c.funcs[k] = v
	}
	return c
}

func (c *checker) checkProgram(prog *Program) error {
	// Signatures first so bodies may refer to any top-level name.
	for _, d := range prog.Decls {
		var err error
		switch d := d.(type) {
		case *VarDef:
			err = c.declareGlobal(d)
		case *ClassDef:
			err = c.declareClass(d)
		case *FuncDef:
			err = c.declareFunc(d)
		}
		if err != nil {
			return err
		}
	}

	for _, d := range prog.Decls {
		var err error
		switch d := d.(type) {
		case *ClassDef:
			for _, m := range d.Methods {
				if err = c.checkMethod(d, m); err != nil {
					break
				}
			}
		case *FuncDef:
			err = c.checkFunc(d)
		}
		if err != nil {
			return err
		}
	}

	for _, s := range prog.Stmts {
		t, err := c.checkStmt(s)
		if err != nil {
			return err
		}
		c.result = t
	}
	return nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// declare records a top-level name. Variables, classes and functions share
// one namespace.
func (c *checker) declare(name string, span Span) error {
	if c.declared[name] {
		return typeErrorf(span, "duplicate declaration of %q", name)
	}
	c.declared[name] = true
	return nil
}

// committedKind names what name already is in the committed environment.
func (c *checker) committedKind(name string) string {
	switch {
	case hasKey(c.env.Types, name):
		return "variable"
	case c.env.Classes[name] != nil:
		return "class"
	case c.env.Funcs[name] != nil:
		return "function"
	}
	return ""
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}

func (c *checker) declareGlobal(v *VarDef) error {
	if err := c.declare(v.Name, v.SpanVal); err != nil {
		return err
	}
	switch kind := c.committedKind(v.Name); kind {
	case "", "variable":
		if old, ok := c.env.Types[v.Name]; ok && !old.Equal(v.Type) {
			return typeErrorf(v.SpanVal, "%q is already declared with type %s", v.Name, old)
		}
	default:
		return typeErrorf(v.SpanVal, "%q is already declared as a %s", v.Name, kind)
	}
	if err := c.checkInit(v, false); err != nil {
		return err
	}
	c.globals[v.Name] = v.Type
	return nil
}

// checkInit validates a declaration's literal against its declared type.
func (c *checker) checkInit(v *VarDef, field bool) error {
	var got Type
	switch lit := v.Init.(type) {
	case *NumberLit:
		got = NumberType
	case *BoolLit:
		got = BoolType
	case *NoneLit:
		if !v.Type.IsClass() {
			return typeErrorf(lit.SpanVal, "cannot initialize %q of type %s with None", v.Name, v.Type)
		}
		got = v.Type
	case *ObjectLit:
		if field {
			return typeErrorf(lit.SpanVal, "field %q cannot be initialized with an object", v.Name)
		}
		if lit.Name == v.Name {
			return typeErrorf(lit.SpanVal, "%q cannot be initialized with itself", v.Name)
		}
		t, ok := c.lookupVar(lit.Name)
		if !ok {
			return typeErrorf(lit.SpanVal, "%q is not a variable", lit.Name)
		}
		if !t.IsClass() {
			return typeErrorf(lit.SpanVal, "%q is not an object", lit.Name)
		}
		got = t
	}
	c.types[v.Init] = got
	if !got.Equal(v.Type) {
		return typeErrorf(v.Init.Span(), "cannot initialize %q of type %s with a value of type %s", v.Name, v.Type, got)
	}
	return nil
}

func literalValue(lit Literal) int32 {
	switch lit := lit.(type) {
	case *NumberLit:
		return lit.Value
	case *BoolLit:
		if lit.Value {
			return 1
		}
	}
	return 0
}

func (c *checker) declareClass(d *ClassDef) error {
	if err := c.declare(d.Name, d.SpanVal); err != nil {
		return err
	}
	if kind := c.committedKind(d.Name); kind != "" && kind != "class" {
		return typeErrorf(d.SpanVal, "%q is already declared as a %s", d.Name, kind)
	}

	info := &ClassInfo{Name: d.Name, Methods: make(map[string]*Signature)}
	members := make(map[string]bool)
	for _, f := range d.Fields {
		if members[f.Name] {
			return typeErrorf(f.SpanVal, "duplicate member %q in class %s", f.Name, d.Name)
		}
		members[f.Name] = true
		if f.Type.IsClass() && f.Type.Name == d.Name {
			return typeErrorf(f.SpanVal, "class %s cannot contain itself", d.Name)
		}
		if err := c.checkInit(f, true); err != nil {
			return err
		}
		info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Type: f.Type, Default: literalValue(f.Init)})
	}

	for _, m := range d.Methods {
		if members[m.Name] {
			return typeErrorf(m.SpanVal, "duplicate member %q in class %s", m.Name, d.Name)
		}
		members[m.Name] = true
		params, err := paramInfos(m.Params, "self")
		if err != nil {
			return err
		}
		symbol := methodSymbol(d.Name, m.Name)
		if owner, method, ok := c.symbolOwner(symbol, d.Name); ok {
			return typeErrorf(m.SpanVal, "method %s.%s and %s.%s would both be emitted as $%s",
				d.Name, m.Name, owner, method, symbol)
		}
		info.Methods[m.Name] = &Signature{
			Name:   m.Name,
			Params: params,
			Return: m.Return,
			Symbol: symbol,
		}
	}

	if old := c.env.Classes[d.Name]; old != nil && !sameClassShape(old, info) {
		return typeErrorf(d.SpanVal, "class %s is already defined with different fields or method signatures", d.Name)
	}
	c.classes[d.Name] = info
	c.newClasses[d.Name] = info
	return nil
}

func (c *checker) declareFunc(d *FuncDef) error {
	if err := c.declare(d.Name, d.SpanVal); err != nil {
		return err
	}
	if kind := c.committedKind(d.Name); kind != "" && kind != "function" {
		return typeErrorf(d.SpanVal, "%q is already declared as a %s", d.Name, kind)
	}
	params, err := paramInfos(d.Params, "")
	if err != nil {
		return err
	}
	sig := &Signature{Name: d.Name, Params: params, Return: d.Return, Symbol: funcSymbol(d.Name)}
	if old := c.env.Funcs[d.Name]; old != nil && !sameSignature(old, sig) {
		return typeErrorf(d.SpanVal, "function %s is already defined with a different signature", d.Name)
	}
	c.funcs[d.Name] = sig
	c.newFuncs[d.Name] = sig
	return nil
}

// methodSymbol is the emitted name of a method.
func methodSymbol(class, method string) string { return class + "_" + method }

// funcSymbol is the emitted name of a top-level function. The $ keeps it
// apart from every method symbol.
func funcSymbol(name string) string { return "fn$" + name }

// symbolOwner finds a method of a class other than class that is emitted
// as symbol. Class A_b with method c and class A with method b_c collide.
func (c *checker) symbolOwner(symbol, class string) (string, string, bool) {
	for _, name := range sortedKeys(c.classes) {
		if name == class {
			continue
		}
		for _, m := range c.classes[name].MethodNames() {
			if c.classes[name].Methods[m].Symbol == symbol {
				return name, m, true
			}
		}
	}
	return "", "", false
}

func paramInfos(params []*Param, reserved string) ([]ParamInfo, error) {
	seen := make(map[string]bool)
	if reserved != "" {
		seen[reserved] = true
	}
	var out []ParamInfo
	for _, p := range params {
		if seen[p.Name] {
			return nil, typeErrorf(p.SpanVal, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, ParamInfo{Name: p.Name, Type: p.Type})
	}
	return out, nil
}

func sameSignature(a, b *Signature) bool {
	if !a.Return.Equal(b.Return) || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !a.Params[i].Type.Equal(b.Params[i].Type) {
			return false
		}
	}
	return true
}

func sameClassShape(a, b *ClassInfo) bool {
	if len(a.Fields) != len(b.Fields) || len(a.Methods) != len(b.Methods) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !a.Fields[i].Type.Equal(b.Fields[i].Type) {
			return false
		}
	}
	for name, sig := range a.Methods {
		other, ok := b.Methods[name]
		if !ok || !sameSignature(sig, other) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Bodies
// ---------------------------------------------------------------------------

func (c *checker) checkMethod(class *ClassDef, m *MethodDef) error {
	locals := map[string]Type{"self": ClassType(class.Name)}
	return c.checkBody(m.Name, m.SpanVal, locals, m.Params, m.Return, m.Body)
}

func (c *checker) checkFunc(f *FuncDef) error {
	return c.checkBody(f.Name, f.SpanVal, map[string]Type{}, f.Params, f.Return, f.Body)
}

func (c *checker) checkBody(name string, span Span, locals map[string]Type, params []*Param, ret Type, body *Body) error {
	c.locals = locals
	c.ret = &ret
	defer func() {
		c.locals = nil
		c.ret = nil
	}()

	for _, p := range params {
		locals[p.Name] = p.Type
	}
	for _, v := range body.Locals {
		if _, dup := locals[v.Name]; dup {
			return typeErrorf(v.SpanVal, "duplicate local %q in %s", v.Name, name)
		}
		if err := c.checkInit(v, false); err != nil {
			return err
		}
		locals[v.Name] = v.Type
	}
	for _, s := range body.Stmts {
		if _, err := c.checkStmt(s); err != nil {
			return err
		}
	}
	if ret.Kind != TypeNone && !definitelyReturns(body.Stmts) {
		return typeErrorf(span, "%s must return a value of type %s on every path", name, ret)
	}
	return nil
}

func definitelyReturns(stmts []Stmt) bool {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ReturnStmt:
			return true
		case *IfStmt:
			if definitelyReturns(s.Then) && definitelyReturns(s.Else) {
				return true
			}
		}
	}
	return false
}

func (c *checker) lookupVar(name string) (Type, bool) {
	if c.locals != nil {
		if t, ok := c.locals[name]; ok {
			return t, true
		}
	}
	t, ok := c.globals[name]
	return t, ok
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *checker) checkStmt(s Stmt) (Type, error) {
	switch s := s.(type) {
	case *AssignStmt:
		if s.Target == "self" && c.locals != nil {
			return Type{}, typeErrorf(s.SpanVal, "cannot assign to self")
		}
		want, ok := c.lookupVar(s.Target)
		if !ok {
			return Type{}, typeErrorf(s.SpanVal, "%q is not a variable", s.Target)
		}
		got, err := c.checkExpr(s.Value)
		if err != nil {
			return Type{}, err
		}
		if !got.Equal(want) {
			return Type{}, typeErrorf(s.Value.Span(), "cannot assign a value of type %s to %q of type %s", got, s.Target, want)
		}
		return NoneType, nil

	case *MemberAssignStmt:
		field, err := c.checkField(s.Object, s.Field, s.SpanVal)
		if err != nil {
			return Type{}, err
		}
		got, err := c.checkExpr(s.Value)
		if err != nil {
			return Type{}, err
		}
		if !got.Equal(field.Type) {
			return Type{}, typeErrorf(s.Value.Span(), "cannot assign a value of type %s to field %q of type %s", got, s.Field, field.Type)
		}
		return NoneType, nil

	case *IfStmt:
		cond, err := c.checkExpr(s.Cond)
		if err != nil {
			return Type{}, err
		}
		if cond.Kind != TypeBool {
			return Type{}, typeErrorf(s.Cond.Span(), "condition must be bool, got %s", cond)
		}
		for _, branch := range [][]Stmt{s.Then, s.Else} {
			for _, st := range branch {
				if _, err := c.checkStmt(st); err != nil {
					return Type{}, err
				}
			}
		}
		return NoneType, nil

	case *ReturnStmt:
		if c.ret == nil {
			return Type{}, typeErrorf(s.SpanVal, "return outside of a function")
		}
		if s.Value == nil {
			if c.ret.Kind != TypeNone {
				return Type{}, typeErrorf(s.SpanVal, "missing return value of type %s", *c.ret)
			}
			return NoneType, nil
		}
		got, err := c.checkExpr(s.Value)
		if err != nil {
			return Type{}, err
		}
		if !got.Equal(*c.ret) {
			return Type{}, typeErrorf(s.Value.Span(), "expected a return value of type %s, got %s", *c.ret, got)
		}
		return NoneType, nil

	case *PassStmt:
		return NoneType, nil

	case *ExprStmt:
		return c.checkExpr(s.Expr)
	}
	return Type{}, typeErrorf(s.Span(), "unsupported statement %T", s)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *checker) checkExpr(e Expr) (Type, error) {
	t, err := c.inferExpr(e)
	if err != nil {
		return Type{}, err
	}
	c.types[e] = t
	return t, nil
}

func (c *checker) inferExpr(e Expr) (Type, error) {
	switch e := e.(type) {
	case *NumberLit:
		return NumberType, nil

	case *BoolLit:
		return BoolType, nil

	case *NoneLit:
		return NoneType, nil

	case *ObjectLit:
		if t, ok := c.lookupVar(e.Name); ok {
			return t, nil
		}
		return Type{}, typeErrorf(e.SpanVal, "%q is not a variable", e.Name)

	case *Ident:
		if t, ok := c.lookupVar(e.Name); ok {
			return t, nil
		}
		return Type{}, typeErrorf(e.SpanVal, "%q is not a variable", e.Name)

	case *UnaryExpr:
		t, err := c.checkExpr(e.Operand)
		if err != nil {
			return Type{}, err
		}
		want := NumberType
		if e.Op == OpNot {
			want = BoolType
		}
		if !t.Equal(want) {
			return Type{}, typeErrorf(e.SpanVal, "operator %s expects %s, got %s", e.Op, want, t)
		}
		return want, nil

	case *BinaryExpr:
		return c.checkBinary(e)

	case *ParenExpr:
		return c.checkExpr(e.Inner)

	case *PrintExpr:
		if _, err := c.checkExpr(e.Arg); err != nil {
			return Type{}, err
		}
		return NoneType, nil

	case *ConstructExpr:
		if c.classes[e.Class] == nil {
			return Type{}, typeErrorf(e.SpanVal, "unknown class %s", e.Class)
		}
		return ClassType(e.Class), nil

	case *MemberExpr:
		field, err := c.checkField(e.Object, e.Field, e.SpanVal)
		if err != nil {
			return Type{}, err
		}
		return field.Type, nil

	case *MethodCallExpr:
		return c.checkMethodCall(e)

	case *CallExpr:
		return c.checkCall(e)
	}
	return Type{}, typeErrorf(e.Span(), "unsupported expression %T", e)
}

func (c *checker) checkBinary(e *BinaryExpr) (Type, error) {
	l, err := c.checkExpr(e.Left)
	if err != nil {
		return Type{}, err
	}
	r, err := c.checkExpr(e.Right)
	if err != nil {
		return Type{}, err
	}
	switch {
	case e.Op.IsArithmetic():
		if l.Kind != TypeNumber || r.Kind != TypeNumber {
			return Type{}, typeErrorf(e.SpanVal, "operator %s expects int operands, got %s and %s", e.Op, l, r)
		}
		return NumberType, nil
	case e.Op.IsOrdering():
		if l.Kind != TypeNumber || r.Kind != TypeNumber {
			return Type{}, typeErrorf(e.SpanVal, "operator %s expects int operands, got %s and %s", e.Op, l, r)
		}
		return BoolType, nil
	case e.Op == OpEq || e.Op == OpNe:
		if l.Kind != r.Kind {
			return Type{}, typeErrorf(e.SpanVal, "cannot compare %s with %s", l, r)
		}
		return BoolType, nil
	case e.Op == OpIs:
		bothNone := l.Kind == TypeNone && r.Kind == TypeNone
		bothObjects := l.IsClass() && r.IsClass()
		if !bothNone && !bothObjects {
			return Type{}, typeErrorf(e.SpanVal, "operator is expects two objects or two Nones, got %s and %s", l, r)
		}
		return BoolType, nil
	}
	return Type{}, typeErrorf(e.SpanVal, "unsupported operator %s", e.Op)
}

func (c *checker) checkField(obj Expr, name string, span Span) (FieldInfo, error) {
	t, err := c.checkExpr(obj)
	if err != nil {
		return FieldInfo{}, err
	}
	if !t.IsClass() {
		return FieldInfo{}, typeErrorf(span, "cannot access field %q of a value of type %s", name, t)
	}
	field, ok := c.classes[t.Name].Field(name)
	if !ok {
		return FieldInfo{}, typeErrorf(span, "class %s has no field %q", t.Name, name)
	}
	return field, nil
}

// checkMethodCall verifies the receiver, the method and the argument count.
// Argument types are checked for well-formedness only, and the call has the
// receiver's type.
func (c *checker) checkMethodCall(e *MethodCallExpr) (Type, error) {
	recv, err := c.checkExpr(e.Object)
	if err != nil {
		return Type{}, err
	}
	if !recv.IsClass() {
		return Type{}, typeErrorf(e.SpanVal, "cannot call method %q on a value of type %s", e.Method, recv)
	}
	sig, ok := c.classes[recv.Name].Methods[e.Method]
	if !ok {
		return Type{}, typeErrorf(e.SpanVal, "class %s has no method %q", recv.Name, e.Method)
	}
	if len(e.Args) != len(sig.Params) {
		return Type{}, typeErrorf(e.SpanVal, "method %s.%s expects %d %s, got %d",
			recv.Name, e.Method, len(sig.Params), plural(len(sig.Params), "argument"), len(e.Args))
	}
	for _, a := range e.Args {
		if _, err := c.checkExpr(a); err != nil {
			return Type{}, err
		}
	}
	return recv, nil
}

func (c *checker) checkCall(e *CallExpr) (Type, error) {
	sig, ok := c.funcs[e.Func]
	if !ok {
		return Type{}, typeErrorf(e.SpanVal, "%q is not a function", e.Func)
	}
	if len(e.Args) != len(sig.Params) {
		return Type{}, typeErrorf(e.SpanVal, "function %s expects %d %s, got %d",
			e.Func, len(sig.Params), plural(len(sig.Params), "argument"), len(e.Args))
	}
	for i, a := range e.Args {
		t, err := c.checkExpr(a)
		if err != nil {
			return Type{}, err
		}
		if want := sig.Params[i].Type; !t.Equal(want) {
			return Type{}, typeErrorf(a.Span(), "argument %d of %s: expected %s, got %s", i+1, e.Func, want, t)
		}
	}
	return sig.Return, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return fmt.Sprintf("%ss", word)
}
