package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Codegen: lower a checked program to WebAssembly text
// ---------------------------------------------------------------------------

// EntryFunc is the exported function that runs the top-level statements.
const EntryFunc = "exported_func"

// EchoFunc is the exported function that prints a result through the
// intrinsic chosen for the program's result type.
const EchoFunc = "echo"

// Print intrinsics imported from the host.
const (
	PrintObject = "print"
	PrintNum    = "print_num"
	PrintBool   = "print_bool"
	PrintNone   = "print_none"
)

// Identifiers of everything in a module that does not come from a source
// declaration. Each contains a $, which no source identifier can, so none
// of them can be produced by a Class_method or function symbol.
const (
	allocSymbol = "rt$alloc"
	echoSymbol  = "rt$echo"
	entrySymbol = "rt$entry"
)

func hostSymbol(intrinsic string) string { return "host$" + intrinsic }

func initSymbol(class string) string { return "rt$init$" + class }

func newSymbol(class string) string { return "rt$new$" + class }

// Output is a generated module.
type Output struct {
	WAT    string
	Echo   string // intrinsic the result is routed through
	Result Type
}

// Options tune code generation.
type Options struct {
	// Comments annotates the module with source lines.
	Comments bool
}

// Generate lowers checked to a module. It returns the new environment; env
// itself is not modified.
func Generate(checked *Checked, env *GlobalEnv) (*Output, *GlobalEnv, error) {
	return GenerateWithOptions(checked, env, Options{})
}

// GenerateWithOptions is Generate with explicit options.
func GenerateWithOptions(checked *Checked, env *GlobalEnv, opts Options) (*Output, *GlobalEnv, error) {
	next := env.Clone()
	if err := Layout(checked, next); err != nil {
		return nil, nil, err
	}

	g := &generator{env: next, types: checked.Types, opts: opts}
	for _, d := range checked.Program.Decls {
		var err error
		switch d := d.(type) {
		case *ClassDef:
			for _, m := range d.Methods {
				if err = g.genMethod(d, m); err != nil {
					break
				}
			}
		case *FuncDef:
			err = g.genFunc(d)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	entry, err := g.genEntry(checked.Program)
	if err != nil {
		return nil, nil, err
	}

	echo := printIntrinsic(checked.Result)
	var m strings.Builder
	m.WriteString("(module\n")
	for _, name := range []string{PrintObject, PrintNum, PrintBool, PrintNone} {
		fmt.Fprintf(&m, "  (import \"imports\" %q (func $%s (param i32) (result i32)))\n", name, hostSymbol(name))
	}
	fmt.Fprintf(&m, "  (import \"js\" \"memory\" (memory %d))\n", next.MemoryPages)
	m.WriteString(g.allocFunc())
	for _, name := range next.ClassNames() {
		m.WriteString(g.initFunc(next.Classes[name]))
		m.WriteString(g.newFunc(name))
	}
	symbols := make([]string, 0, len(next.Bodies))
	for sym := range next.Bodies {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		m.WriteString(next.Bodies[sym])
	}
	fmt.Fprintf(&m, "  (func $%s (export %q) (param $v i32) (result i32)\n    local.get $v\n    call $%s)\n", echoSymbol, EchoFunc, hostSymbol(echo))
	m.WriteString(entry)
	m.WriteString(")\n")

	return &Output{WAT: m.String(), Echo: echo, Result: checked.Result}, next, nil
}

// printIntrinsic selects the intrinsic for values of type t.
func printIntrinsic(t Type) string {
	switch t.Kind {
	case TypeNumber:
		return PrintNum
	case TypeBool:
		return PrintBool
	case TypeNone:
		return PrintNone
	}
	return PrintObject
}

type generator struct {
	env   *GlobalEnv
	types map[Expr]Type
	opts  Options

	// Current function.
	b      *strings.Builder
	depth  int
	locals map[string]Type
}

func (g *generator) emit(format string, args ...interface{}) {
	g.b.WriteString(strings.Repeat("  ", g.depth))
	fmt.Fprintf(g.b, format, args...)
	g.b.WriteByte('\n')
}

func (g *generator) comment(n Node) {
	if g.opts.Comments {
		g.emit(";; line %d", n.Span().Start.Line)
	}
}

// ---------------------------------------------------------------------------
// Runtime support: heap and constructors
// ---------------------------------------------------------------------------

// allocFunc bumps the heap pointer down by $words words. Running into the
// globals traps.
func (g *generator) allocFunc() string {
	hp := g.env.HeapPointerAddr()
	var b strings.Builder
	fmt.Fprintf(&b, "  (func $%s (param $words i32) (result i32)\n", allocSymbol)
	fmt.Fprintf(&b, "    (local $p i32)\n")
	fmt.Fprintf(&b, "    i32.const %d\n    i32.load\n", hp)
	fmt.Fprintf(&b, "    local.get $words\n    i32.const %d\n    i32.mul\n    i32.sub\n", WordSize)
	fmt.Fprintf(&b, "    local.tee $p\n    i32.const %d\n    i32.lt_s\n", g.env.Offset*WordSize)
	fmt.Fprintf(&b, "    if\n      unreachable\n    end\n")
	fmt.Fprintf(&b, "    i32.const %d\n    local.get $p\n    i32.store\n", hp)
	fmt.Fprintf(&b, "    local.get $p)\n")
	return b.String()
}

// initFunc writes the field defaults of class c at address $p.
func (g *generator) initFunc(c *ClassInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  (func $%s (param $p i32)\n", initSymbol(c.Name))
	for _, f := range c.Fields {
		if f.Type.IsClass() {
			fmt.Fprintf(&b, "    local.get $p\n    i32.const %d\n    i32.add\n    call $%s\n", f.Offset*WordSize, initSymbol(f.Type.Name))
			continue
		}
		fmt.Fprintf(&b, "    local.get $p\n    i32.const %d\n    i32.store%s\n", f.Default, offsetImm(f.Offset))
	}
	b.WriteString("  )\n")
	return b.String()
}

func (g *generator) newFunc(class string) string {
	words := max(g.env.ClassSizes[class], 1)
	return fmt.Sprintf("  (func $%s (result i32)\n    (local $p i32)\n    i32.const %d\n    call $%s\n    local.tee $p\n    call $%s\n    local.get $p)\n",
		newSymbol(class), words, allocSymbol, initSymbol(class))
}

func offsetImm(words int) string {
	if words == 0 {
		return ""
	}
	return fmt.Sprintf(" offset=%d", words*WordSize)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// scratch locals every generated function declares.
var scratchLocals = []string{"$last", "$dst", "$src"}

func (g *generator) genMethod(class *ClassDef, m *MethodDef) error {
	sig := g.env.Classes[class.Name].Methods[m.Name]
	params := append([]*Param{{Name: "self", Type: ClassType(class.Name)}}, m.Params...)
	return g.genBody(sig.Symbol, params, m.Body)
}

func (g *generator) genFunc(f *FuncDef) error {
	return g.genBody(g.env.Funcs[f.Name].Symbol, f.Params, f.Body)
}

func (g *generator) genBody(symbol string, params []*Param, body *Body) error {
	var b strings.Builder
	g.b, g.depth = &b, 1
	g.locals = make(map[string]Type)
	defer func() { g.locals = nil }()

	header := "(func $" + symbol
	for _, p := range params {
		header += fmt.Sprintf(" (param $%s i32)", p.Name)
		g.locals[p.Name] = p.Type
	}
	header += " (result i32)"
	g.emit("%s", header)
	g.depth++

	for _, v := range body.Locals {
		g.emit("(local $%s i32)", v.Name)
	}
	for _, s := range scratchLocals {
		g.emit("(local $%s i32)", s)
	}
	for _, v := range body.Locals {
		if err := g.genLiteral(v.Init, v.Type); err != nil {
			return err
		}
		g.emit("local.set $%s", v.Name)
		g.locals[v.Name] = v.Type
	}
	for _, s := range body.Stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.emit("i32.const 0)")

	g.env.MethodSigs[symbol] = header
	g.env.Bodies[symbol] = b.String()
	return nil
}

func (g *generator) genEntry(prog *Program) (string, error) {
	var b strings.Builder
	g.b, g.depth = &b, 1
	g.emit("(func $%s (export %q) (result i32)", entrySymbol, EntryFunc)
	g.depth++
	for _, s := range scratchLocals {
		g.emit("(local $%s i32)", s)
	}

	// Start the heap at the top of memory on first use, and trap if the
	// globals have grown into it.
	hp := g.env.HeapPointerAddr()
	g.emit("i32.const %d", hp)
	g.emit("i32.load")
	g.emit("i32.eqz")
	g.emit("if")
	g.emit("  i32.const %d", hp)
	g.emit("  i32.const %d", hp)
	g.emit("  i32.store")
	g.emit("end")
	g.emit("i32.const %d", hp)
	g.emit("i32.load")
	g.emit("i32.const %d", g.env.Offset*WordSize)
	g.emit("i32.lt_s")
	g.emit("if")
	g.emit("  unreachable")
	g.emit("end")

	for _, d := range prog.Decls {
		v, ok := d.(*VarDef)
		if !ok {
			continue
		}
		if err := g.genGlobalInit(v); err != nil {
			return "", err
		}
	}

	value := false
	for i, s := range prog.Stmts {
		if es, ok := s.(*ExprStmt); ok && i == len(prog.Stmts)-1 {
			g.comment(s)
			if err := g.genExpr(es.Expr); err != nil {
				return "", err
			}
			value = true
			continue
		}
		if err := g.genStmt(s); err != nil {
			return "", err
		}
	}
	if !value {
		g.emit("i32.const 0")
	}
	b.WriteString("  )\n")
	return b.String(), nil
}

func (g *generator) genGlobalInit(v *VarDef) error {
	if _, alias := v.Init.(*ObjectLit); alias {
		return nil
	}
	addr, err := g.globalAddr(v.Name, v.SpanVal)
	if err != nil {
		return err
	}
	g.comment(v)
	if v.Type.IsClass() {
		g.emit("i32.const %d", addr)
		g.emit("call $%s", initSymbol(v.Type.Name))
		return nil
	}
	g.emit("i32.const %d", addr)
	g.emit("i32.const %d", literalValue(v.Init))
	g.emit("i32.store")
	return nil
}

// genLiteral pushes a local initializer.
func (g *generator) genLiteral(lit Literal, t Type) error {
	if obj, ok := lit.(*ObjectLit); ok {
		return g.genVar(obj.Name, obj.SpanVal)
	}
	g.emit("i32.const %d", literalValue(lit))
	return nil
}

func (g *generator) globalAddr(name string, span Span) (int, error) {
	off, ok := g.env.Offsets[name]
	if !ok {
		return 0, internalErrorf(span, "no storage for %q", name)
	}
	return off * WordSize, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *generator) genStmt(s Stmt) error {
	g.comment(s)
	switch s := s.(type) {
	case *AssignStmt:
		return g.genAssign(s)

	case *MemberAssignStmt:
		field, err := g.field(s.Object, s.Field, s.SpanVal)
		if err != nil {
			return err
		}
		if err := g.genExpr(s.Object); err != nil {
			return err
		}
		if field.Type.IsClass() {
			g.emit("i32.const %d", field.Offset*WordSize)
			g.emit("i32.add")
			g.emit("local.set $$dst")
			if err := g.genExpr(s.Value); err != nil {
				return err
			}
			g.emit("local.set $$src")
			return g.genCopy(field.Type.Name, s.SpanVal)
		}
		if err := g.genExpr(s.Value); err != nil {
			return err
		}
		g.emit("i32.store%s", offsetImm(field.Offset))
		return nil

	case *IfStmt:
		if err := g.genExpr(s.Cond); err != nil {
			return err
		}
		g.emit("if (result i32)")
		if err := g.genBranch(s.Then); err != nil {
			return err
		}
		g.emit("else")
		if err := g.genBranch(s.Else); err != nil {
			return err
		}
		g.emit("end")
		g.emit("local.set $$last")
		return nil

	case *ReturnStmt:
		if s.Value == nil {
			g.emit("i32.const 0")
		} else if err := g.genExpr(s.Value); err != nil {
			return err
		}
		g.emit("return")
		return nil

	case *PassStmt:
		return nil

	case *ExprStmt:
		if err := g.genExpr(s.Expr); err != nil {
			return err
		}
		g.emit("local.set $$last")
		return nil
	}
	return internalErrorf(s.Span(), "cannot generate %T", s)
}

func (g *generator) genBranch(stmts []Stmt) error {
	g.depth++
	defer func() { g.depth-- }()
	for _, s := range stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.emit("i32.const 0")
	return nil
}

func (g *generator) genAssign(s *AssignStmt) error {
	if _, local := g.locals[s.Target]; local {
		if err := g.genExpr(s.Value); err != nil {
			return err
		}
		g.emit("local.set $%s", s.Target)
		return nil
	}

	addr, err := g.globalAddr(s.Target, s.SpanVal)
	if err != nil {
		return err
	}
	t, ok := g.env.Types[s.Target]
	if !ok {
		return internalErrorf(s.SpanVal, "no type for %q", s.Target)
	}
	if t.IsClass() {
		if err := g.genExpr(s.Value); err != nil {
			return err
		}
		g.emit("local.set $$src")
		g.emit("i32.const %d", addr)
		g.emit("local.set $$dst")
		return g.genCopy(t.Name, s.SpanVal)
	}
	g.emit("i32.const %d", addr)
	if err := g.genExpr(s.Value); err != nil {
		return err
	}
	g.emit("i32.store")
	return nil
}

// genCopy copies an instance of class from $$src to $$dst.
func (g *generator) genCopy(class string, span Span) error {
	size, ok := g.env.ClassSizes[class]
	if !ok {
		return internalErrorf(span, "size of class %s is not recorded", class)
	}
	for i := 0; i < size; i++ {
		g.emit("local.get $$dst")
		g.emit("local.get $$src")
		g.emit("i32.load%s", offsetImm(i))
		g.emit("i32.store%s", offsetImm(i))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryInstrs = map[BinaryOp]string{
	OpAdd:      "i32.add",
	OpSub:      "i32.sub",
	OpMul:      "i32.mul",
	OpFloorDiv: "i32.div_s",
	OpMod:      "i32.rem_s",
	OpEq:       "i32.eq",
	OpNe:       "i32.ne",
	OpLt:       "i32.lt_s",
	OpLe:       "i32.le_s",
	OpGt:       "i32.gt_s",
	OpGe:       "i32.ge_s",
	OpIs:       "i32.eq",
}

func (g *generator) genExpr(e Expr) error {
	switch e := e.(type) {
	case *NumberLit, *BoolLit, *NoneLit:
		g.emit("i32.const %d", literalValue(e.(Literal)))

	case *ObjectLit:
		return g.genVar(e.Name, e.SpanVal)

	case *Ident:
		return g.genVar(e.Name, e.SpanVal)

	case *UnaryExpr:
		if e.Op == OpNeg {
			g.emit("i32.const 0")
			if err := g.genExpr(e.Operand); err != nil {
				return err
			}
			g.emit("i32.sub")
			return nil
		}
		if err := g.genExpr(e.Operand); err != nil {
			return err
		}
		g.emit("i32.const 1")
		g.emit("i32.xor")

	case *BinaryExpr:
		if err := g.genExpr(e.Left); err != nil {
			return err
		}
		if err := g.genExpr(e.Right); err != nil {
			return err
		}
		instr, ok := binaryInstrs[e.Op]
		if !ok {
			return internalErrorf(e.SpanVal, "no instruction for operator %s", e.Op)
		}
		g.emit("%s", instr)

	case *ParenExpr:
		return g.genExpr(e.Inner)

	case *PrintExpr:
		t, err := g.typeOf(e.Arg)
		if err != nil {
			return err
		}
		if err := g.genExpr(e.Arg); err != nil {
			return err
		}
		g.emit("call $%s", hostSymbol(printIntrinsic(t)))
		g.emit("drop")
		g.emit("i32.const 0")

	case *ConstructExpr:
		if _, ok := g.env.Classes[e.Class]; !ok {
			return internalErrorf(e.SpanVal, "unknown class %s", e.Class)
		}
		g.emit("call $%s", newSymbol(e.Class))

	case *MemberExpr:
		field, err := g.field(e.Object, e.Field, e.SpanVal)
		if err != nil {
			return err
		}
		if err := g.genExpr(e.Object); err != nil {
			return err
		}
		if field.Type.IsClass() {
			g.emit("i32.const %d", field.Offset*WordSize)
			g.emit("i32.add")
			return nil
		}
		g.emit("i32.load%s", offsetImm(field.Offset))

	case *MethodCallExpr:
		recv, err := g.typeOf(e.Object)
		if err != nil {
			return err
		}
		class, ok := g.env.Classes[recv.Name]
		if !ok {
			return internalErrorf(e.SpanVal, "unknown class %s", recv.Name)
		}
		sig, ok := class.Methods[e.Method]
		if !ok {
			return internalErrorf(e.SpanVal, "class %s has no method %q", recv.Name, e.Method)
		}
		if err := g.genExpr(e.Object); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := g.genExpr(a); err != nil {
				return err
			}
		}
		g.emit("call $%s", sig.Symbol)

	case *CallExpr:
		sig, ok := g.env.Funcs[e.Func]
		if !ok {
			return internalErrorf(e.SpanVal, "unknown function %s", e.Func)
		}
		for _, a := range e.Args {
			if err := g.genExpr(a); err != nil {
				return err
			}
		}
		g.emit("call $%s", sig.Symbol)

	default:
		return internalErrorf(e.Span(), "cannot generate %T", e)
	}
	return nil
}

// genVar pushes the value of a variable. A class-typed global is its own
// instance block, so its value is the block address.
func (g *generator) genVar(name string, span Span) error {
	if _, local := g.locals[name]; local {
		g.emit("local.get $%s", name)
		return nil
	}
	addr, err := g.globalAddr(name, span)
	if err != nil {
		return err
	}
	t, ok := g.env.Types[name]
	if !ok {
		return internalErrorf(span, "no type for %q", name)
	}
	g.emit("i32.const %d", addr)
	if !t.IsClass() {
		g.emit("i32.load")
	}
	return nil
}

func (g *generator) typeOf(e Expr) (Type, error) {
	t, ok := g.types[e]
	if !ok {
		return Type{}, internalErrorf(e.Span(), "expression was not type checked")
	}
	return t, nil
}

func (g *generator) field(obj Expr, name string, span Span) (FieldInfo, error) {
	t, err := g.typeOf(obj)
	if err != nil {
		return FieldInfo{}, err
	}
	class, ok := g.env.Classes[t.Name]
	if !ok {
		return FieldInfo{}, internalErrorf(span, "unknown class %s", t.Name)
	}
	f, ok := class.Field(name)
	if !ok {
		return FieldInfo{}, internalErrorf(span, "class %s has no field %q", t.Name, name)
	}
	return f, nil
}
