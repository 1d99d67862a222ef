package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Module: the parsed form of a WebAssembly text module
// ---------------------------------------------------------------------------

// Module is a parsed module. Only i32 values and the linear instruction
// form are supported, which is what the pywat code generator emits.
type Module struct {
	Funcs   []*Func
	Memory  *MemoryImport
	Exports map[string]int // export name -> function index
	byName  map[string]int // $name -> function index
}

// Func is a defined or imported function.
type Func struct {
	Name   string // without the leading $
	Import string // "module.name" for imports
	Params int
	Result bool
	Locals int      // excluding params
	Body   []*Instr // nil for imports

	localNames map[string]int
}

// MemoryImport is an imported linear memory.
type MemoryImport struct {
	Module string
	Name   string
	Pages  int
}

// Opcode identifies an instruction.
type Opcode int

const (
	OpUnreachable Opcode = iota
	OpNop
	OpDrop
	OpReturn
	OpCall
	OpIf
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpConst
	OpLoad
	OpStore
	OpEqz
	OpAdd
	OpSub
	OpMul
	OpDivS
	OpRemS
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNe
	OpLtS
	OpLeS
	OpGtS
	OpGeS
)

var mnemonics = map[string]Opcode{
	"unreachable": OpUnreachable,
	"nop":         OpNop,
	"drop":        OpDrop,
	"return":      OpReturn,
	"call":        OpCall,
	"if":          OpIf,
	"local.get":   OpLocalGet,
	"local.set":   OpLocalSet,
	"local.tee":   OpLocalTee,
	"i32.const":   OpConst,
	"i32.load":    OpLoad,
	"i32.store":   OpStore,
	"i32.eqz":     OpEqz,
	"i32.add":     OpAdd,
	"i32.sub":     OpSub,
	"i32.mul":     OpMul,
	"i32.div_s":   OpDivS,
	"i32.rem_s":   OpRemS,
	"i32.and":     OpAnd,
	"i32.or":      OpOr,
	"i32.xor":     OpXor,
	"i32.eq":      OpEq,
	"i32.ne":      OpNe,
	"i32.lt_s":    OpLtS,
	"i32.le_s":    OpLeS,
	"i32.gt_s":    OpGtS,
	"i32.ge_s":    OpGeS,
}

// Instr is one instruction. If holds its arms in Then and Else.
type Instr struct {
	Op     Opcode
	Imm    int32 // constant, local index, function index or memory offset
	Result bool  // if (result i32)
	Then   []*Instr
	Else   []*Instr
}

// ParseModule parses the text of a module.
func ParseModule(text string) (*Module, error) {
	forms, err := readSexprs(text)
	if err != nil {
		return nil, err
	}
	if len(forms) != 1 || forms[0].head() != "module" {
		return nil, fmt.Errorf("wat: expected a single (module ...) form")
	}

	m := &Module{Exports: make(map[string]int), byName: make(map[string]int)}
	bodies := make(map[int]*sexpr) // function index -> defining form
	for _, field := range forms[0].list[1:] {
		switch field.head() {
		case "import":
			if err := m.parseImport(field); err != nil {
				return nil, err
			}
		case "func":
			f, err := m.parseFuncHeader(field)
			if err != nil {
				return nil, err
			}
			if f.Import == "" {
				bodies[len(m.Funcs)-1] = field
			}
		default:
			return nil, fmt.Errorf("wat: line %d: unsupported module field %s", field.line, field.head())
		}
	}

	// Bodies are parsed once every function name is known.
	for i, f := range m.Funcs {
		field, ok := bodies[i]
		if !ok {
			continue
		}
		if err := m.parseBody(f, field); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// funcParts splits a func form into its name, the header forms that lead
// it (export, import, param, result, local) and its instructions. A
// (result i32) after an if belongs to the instructions.
func funcParts(s *sexpr) (name string, header, code []*sexpr) {
	rest := s.list[1:]
	if len(rest) > 0 && !rest[0].isList && strings.HasPrefix(rest[0].atom, "$") {
		name = rest[0].atom[1:]
		rest = rest[1:]
	}
	for i, c := range rest {
		switch c.head() {
		case "export", "import", "param", "result", "local":
			header = append(header, c)
			continue
		}
		return name, header, rest[i:]
	}
	return name, header, nil
}

// FuncIndex returns the index of the function named $name.
func (m *Module) FuncIndex(name string) (int, bool) {
	i, ok := m.byName[strings.TrimPrefix(name, "$")]
	return i, ok
}

func (m *Module) addFunc(f *Func, line int) error {
	if f.Name != "" {
		if _, dup := m.byName[f.Name]; dup {
			return fmt.Errorf("wat: line %d: duplicate function $%s", line, f.Name)
		}
		m.byName[f.Name] = len(m.Funcs)
	}
	m.Funcs = append(m.Funcs, f)
	return nil
}

// parseImport handles (import "mod" "name" (func $f ...)) and
// (import "mod" "name" (memory N)).
func (m *Module) parseImport(s *sexpr) error {
	if len(s.list) != 4 || !s.list[1].quoted || !s.list[2].quoted {
		return fmt.Errorf("wat: line %d: malformed import %s", s.line, s)
	}
	mod, name, desc := s.list[1].atom, s.list[2].atom, s.list[3]
	switch desc.head() {
	case "func":
		f, err := m.funcSignature(desc)
		if err != nil {
			return err
		}
		f.Import = mod + "." + name
		return m.addFunc(f, s.line)
	case "memory":
		if m.Memory != nil {
			return fmt.Errorf("wat: line %d: more than one memory", s.line)
		}
		if len(desc.list) < 2 {
			return fmt.Errorf("wat: line %d: memory needs a size", s.line)
		}
		pages, err := strconv.Atoi(desc.list[1].atom)
		if err != nil || pages < 0 {
			return fmt.Errorf("wat: line %d: bad memory size %s", s.line, desc.list[1])
		}
		m.Memory = &MemoryImport{Module: mod, Name: name, Pages: pages}
		return nil
	}
	return fmt.Errorf("wat: line %d: unsupported import %s", s.line, desc.head())
}

// parseFuncHeader registers a (func ...) field. An inline
// (import "mod" "name") makes it an import.
func (m *Module) parseFuncHeader(s *sexpr) (*Func, error) {
	f, err := m.funcSignature(s)
	if err != nil {
		return nil, err
	}
	_, header, _ := funcParts(s)
	for _, c := range header {
		switch c.head() {
		case "export":
			if len(c.list) != 2 || !c.list[1].quoted {
				return nil, fmt.Errorf("wat: line %d: malformed export", c.line)
			}
			m.Exports[c.list[1].atom] = len(m.Funcs)
		case "import":
			if len(c.list) != 3 {
				return nil, fmt.Errorf("wat: line %d: malformed import", c.line)
			}
			f.Import = c.list[1].atom + "." + c.list[2].atom
		}
	}
	return f, m.addFunc(f, s.line)
}

// funcSignature reads the name, params and result of a func form.
func (m *Module) funcSignature(s *sexpr) (*Func, error) {
	name, header, _ := funcParts(s)
	f := &Func{Name: name, localNames: make(map[string]int)}
	for _, c := range header {
		switch c.head() {
		case "param":
			if err := f.declare(c, &f.Params); err != nil {
				return nil, err
			}
		case "result":
			if len(c.list) != 2 || c.list[1].atom != "i32" || f.Result {
				return nil, fmt.Errorf("wat: line %d: only a single i32 result is supported", c.line)
			}
			f.Result = true
		}
	}
	return f, nil
}

// declare adds the slots of a (param ...) or (local ...) form.
func (f *Func) declare(s *sexpr, count *int) error {
	items := s.list[1:]
	if len(items) == 2 && strings.HasPrefix(items[0].atom, "$") {
		if items[1].atom != "i32" {
			return fmt.Errorf("wat: line %d: unsupported type %s", s.line, items[1])
		}
		if _, dup := f.localNames[items[0].atom[1:]]; dup {
			return fmt.Errorf("wat: line %d: duplicate local %s", s.line, items[0])
		}
		f.localNames[items[0].atom[1:]] = f.Params + f.Locals
		*count++
		return nil
	}
	for _, it := range items {
		if it.atom != "i32" {
			return fmt.Errorf("wat: line %d: unsupported type %s", s.line, it)
		}
		*count++
	}
	return nil
}

func (m *Module) parseBody(f *Func, s *sexpr) error {
	_, header, code := funcParts(s)
	for _, c := range header {
		if c.head() == "local" {
			if err := f.declare(c, &f.Locals); err != nil {
				return err
			}
		}
	}
	for _, c := range code {
		if c.head() == "local" {
			return fmt.Errorf("wat: line %d: locals must precede instructions", c.line)
		}
	}

	p := &bodyParser{m: m, f: f, code: code}
	body, end, err := p.parseSeq()
	if err != nil {
		return err
	}
	if end != "" {
		return fmt.Errorf("wat: $%s: unexpected %s", f.Name, end)
	}
	f.Body = body
	return nil
}

type bodyParser struct {
	m    *Module
	f    *Func
	code []*sexpr
	pos  int
}

func (p *bodyParser) errorf(format string, args ...interface{}) error {
	line := 0
	if p.pos > 0 && p.pos <= len(p.code) {
		line = p.code[p.pos-1].line
	}
	return fmt.Errorf("wat: line %d: $%s: %s", line, p.f.Name, fmt.Sprintf(format, args...))
}

func (p *bodyParser) next() *sexpr {
	if p.pos >= len(p.code) {
		return nil
	}
	s := p.code[p.pos]
	p.pos++
	return s
}

// parseSeq reads instructions until end of input, "else" or "end", and
// reports which terminator it stopped at.
func (p *bodyParser) parseSeq() ([]*Instr, string, error) {
	var seq []*Instr
	for {
		s := p.next()
		if s == nil {
			return seq, "", nil
		}
		if s.isList {
			return nil, "", p.errorf("folded instruction %s is not supported", s)
		}
		if s.atom == "else" || s.atom == "end" {
			return seq, s.atom, nil
		}
		in, err := p.parseInstr(s.atom)
		if err != nil {
			return nil, "", err
		}
		seq = append(seq, in)
	}
}

func (p *bodyParser) parseInstr(mnemonic string) (*Instr, error) {
	op, ok := mnemonics[mnemonic]
	if !ok {
		return nil, p.errorf("unsupported instruction %s", mnemonic)
	}
	in := &Instr{Op: op}
	switch op {
	case OpConst:
		s := p.next()
		if s == nil || s.isList {
			return nil, p.errorf("i32.const needs an operand")
		}
		v, err := parseI32(s.atom)
		if err != nil {
			return nil, p.errorf("bad constant %s", s.atom)
		}
		in.Imm = v

	case OpLocalGet, OpLocalSet, OpLocalTee:
		s := p.next()
		if s == nil || s.isList {
			return nil, p.errorf("%s needs a local", mnemonic)
		}
		idx, err := p.localIndex(s.atom)
		if err != nil {
			return nil, err
		}
		in.Imm = int32(idx)

	case OpCall:
		s := p.next()
		if s == nil || s.isList {
			return nil, p.errorf("call needs a function")
		}
		idx, ok := p.m.FuncIndex(s.atom)
		if !ok {
			n, err := strconv.Atoi(s.atom)
			if err != nil || n < 0 || n >= len(p.m.Funcs) {
				return nil, p.errorf("unknown function %s", s.atom)
			}
			idx = n
		}
		in.Imm = int32(idx)

	case OpLoad, OpStore:
		for p.pos < len(p.code) && !p.code[p.pos].isList {
			arg := p.code[p.pos].atom
			switch {
			case strings.HasPrefix(arg, "offset="):
				off, err := strconv.ParseUint(strings.TrimPrefix(arg, "offset="), 10, 32)
				if err != nil {
					return nil, p.errorf("bad offset %s", arg)
				}
				in.Imm = int32(off)
			case strings.HasPrefix(arg, "align="):
			default:
				return in, nil
			}
			p.pos++
		}

	case OpIf:
		if p.pos < len(p.code) && p.code[p.pos].head() == "result" {
			in.Result = true
			p.pos++
		}
		then, end, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		in.Then = then
		if end == "else" {
			in.Else, end, err = p.parseSeq()
			if err != nil {
				return nil, err
			}
		}
		if end != "end" {
			return nil, p.errorf("if without end")
		}
	}
	return in, nil
}

func (p *bodyParser) localIndex(ref string) (int, error) {
	if strings.HasPrefix(ref, "$") {
		idx, ok := p.f.localNames[ref[1:]]
		if !ok {
			return 0, p.errorf("unknown local %s", ref)
		}
		return idx, nil
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 || idx >= p.f.Params+p.f.Locals {
		return 0, p.errorf("bad local index %s", ref)
	}
	return idx, nil
}

// parseI32 accepts signed decimal, hex, and unsigned values that wrap.
func parseI32(s string) (int32, error) {
	s = strings.ReplaceAll(s, "_", "")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	if v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("%s out of i32 range", s)
	}
	return int32(uint32(v)), nil
}
