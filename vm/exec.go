package vm

import (
	"fmt"
)

// MaxCallDepth bounds recursion in executed code.
const MaxCallDepth = 4096

// Trap is a runtime failure of executed code.
type Trap struct {
	Func string
	Msg  string
}

func (t *Trap) Error() string {
	if t.Func == "" {
		return "trap: " + t.Msg
	}
	return fmt.Sprintf("trap in $%s: %s", t.Func, t.Msg)
}

// HostFunc implements an imported function.
type HostFunc func(args []int32) (int32, error)

// Imports resolves a module's imports.
type Imports struct {
	Funcs  map[string]HostFunc // keyed "module.name"
	Memory *Memory
}

// Instance is an instantiated module.
type Instance struct {
	mod   *Module
	mem   *Memory
	host  []HostFunc // by function index, nil for defined functions
	depth int
}

// Instantiate links mod against imports.
func Instantiate(mod *Module, imports Imports) (*Instance, error) {
	inst := &Instance{mod: mod, host: make([]HostFunc, len(mod.Funcs))}
	for i, f := range mod.Funcs {
		if f.Import == "" {
			continue
		}
		h, ok := imports.Funcs[f.Import]
		if !ok {
			return nil, fmt.Errorf("vm: unresolved import %s", f.Import)
		}
		inst.host[i] = h
	}
	if mod.Memory != nil {
		if imports.Memory == nil {
			return nil, fmt.Errorf("vm: unresolved memory import %s.%s", mod.Memory.Module, mod.Memory.Name)
		}
		if imports.Memory.Pages() < mod.Memory.Pages {
			return nil, fmt.Errorf("vm: memory has %d pages, module needs %d", imports.Memory.Pages(), mod.Memory.Pages)
		}
		inst.mem = imports.Memory
	}
	return inst, nil
}

// Call invokes an exported function. A function without a result returns 0.
func (inst *Instance) Call(export string, args ...int32) (int32, error) {
	idx, ok := inst.mod.Exports[export]
	if !ok {
		return 0, fmt.Errorf("vm: no export %q", export)
	}
	f := inst.mod.Funcs[idx]
	if len(args) != f.Params {
		return 0, fmt.Errorf("vm: %s takes %d arguments, got %d", export, f.Params, len(args))
	}
	inst.depth = 0
	return inst.invoke(idx, args)
}

func (inst *Instance) invoke(idx int, args []int32) (int32, error) {
	f := inst.mod.Funcs[idx]
	if h := inst.host[idx]; h != nil {
		return h(args)
	}
	if inst.depth >= MaxCallDepth {
		return 0, &Trap{Func: f.Name, Msg: "call stack exhausted"}
	}
	inst.depth++
	defer func() { inst.depth-- }()

	fr := &frame{inst: inst, fn: f, locals: make([]int32, f.Params+f.Locals)}
	copy(fr.locals, args)
	if _, err := fr.run(f.Body); err != nil {
		return 0, err
	}
	if !f.Result {
		return 0, nil
	}
	return fr.pop()
}

type frame struct {
	inst   *Instance
	fn     *Func
	locals []int32
	stack  []int32
}

func (fr *frame) trap(msg string) error {
	return &Trap{Func: fr.fn.Name, Msg: msg}
}

func (fr *frame) push(v int32) { fr.stack = append(fr.stack, v) }

func (fr *frame) pop() (int32, error) {
	if len(fr.stack) == 0 {
		return 0, fr.trap("operand stack underflow")
	}
	v := fr.stack[len(fr.stack)-1]
	fr.stack = fr.stack[:len(fr.stack)-1]
	return v, nil
}

func (fr *frame) pop2() (int32, int32, error) {
	b, err := fr.pop()
	if err != nil {
		return 0, 0, err
	}
	a, err := fr.pop()
	return a, b, err
}

func (fr *frame) memory() (*Memory, error) {
	if fr.inst.mem == nil {
		return nil, fr.trap("no memory")
	}
	return fr.inst.mem, nil
}

// run executes a sequence. It reports whether a return was executed.
func (fr *frame) run(code []*Instr) (bool, error) {
	for _, in := range code {
		switch in.Op {
		case OpUnreachable:
			return false, fr.trap("unreachable")

		case OpNop:

		case OpDrop:
			if _, err := fr.pop(); err != nil {
				return false, err
			}

		case OpReturn:
			if fr.fn.Result {
				v, err := fr.pop()
				if err != nil {
					return false, err
				}
				fr.stack = append(fr.stack[:0], v)
			}
			return true, nil

		case OpCall:
			callee := fr.inst.mod.Funcs[in.Imm]
			if len(fr.stack) < callee.Params {
				return false, fr.trap("operand stack underflow")
			}
			args := append([]int32(nil), fr.stack[len(fr.stack)-callee.Params:]...)
			fr.stack = fr.stack[:len(fr.stack)-callee.Params]
			v, err := fr.inst.invoke(int(in.Imm), args)
			if err != nil {
				return false, err
			}
			if callee.Result {
				fr.push(v)
			}

		case OpIf:
			cond, err := fr.pop()
			if err != nil {
				return false, err
			}
			arm := in.Else
			if cond != 0 {
				arm = in.Then
			}
			height := len(fr.stack)
			returned, err := fr.run(arm)
			if err != nil || returned {
				return returned, err
			}
			want := height
			if in.Result {
				want++
			}
			if len(fr.stack) != want {
				return false, fr.trap("if arm left the wrong number of values")
			}

		case OpLocalGet:
			fr.push(fr.locals[in.Imm])

		case OpLocalSet:
			v, err := fr.pop()
			if err != nil {
				return false, err
			}
			fr.locals[in.Imm] = v

		case OpLocalTee:
			v, err := fr.pop()
			if err != nil {
				return false, err
			}
			fr.locals[in.Imm] = v
			fr.push(v)

		case OpConst:
			fr.push(in.Imm)

		case OpLoad:
			base, err := fr.pop()
			if err != nil {
				return false, err
			}
			mem, err := fr.memory()
			if err != nil {
				return false, err
			}
			v, err := mem.Load(uint32(base) + uint32(in.Imm))
			if err != nil {
				return false, fr.trap(err.(*Trap).Msg)
			}
			fr.push(v)

		case OpStore:
			base, v, err := fr.pop2()
			if err != nil {
				return false, err
			}
			mem, err := fr.memory()
			if err != nil {
				return false, err
			}
			if err := mem.Store(uint32(base)+uint32(in.Imm), v); err != nil {
				return false, fr.trap(err.(*Trap).Msg)
			}

		case OpEqz:
			v, err := fr.pop()
			if err != nil {
				return false, err
			}
			fr.push(boolWord(v == 0))

		default:
			a, b, err := fr.pop2()
			if err != nil {
				return false, err
			}
			v, err := fr.binary(in.Op, a, b)
			if err != nil {
				return false, err
			}
			fr.push(v)
		}
	}
	return false, nil
}

func (fr *frame) binary(op Opcode, a, b int32) (int32, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDivS:
		if b == 0 {
			return 0, fr.trap("integer divide by zero")
		}
		if a == -1<<31 && b == -1 {
			return 0, fr.trap("integer overflow")
		}
		return a / b, nil
	case OpRemS:
		if b == 0 {
			return 0, fr.trap("integer divide by zero")
		}
		if b == -1 {
			return 0, nil
		}
		return a % b, nil
	case OpAnd:
		return a & b, nil
	case OpOr:
		return a | b, nil
	case OpXor:
		return a ^ b, nil
	case OpEq:
		return boolWord(a == b), nil
	case OpNe:
		return boolWord(a != b), nil
	case OpLtS:
		return boolWord(a < b), nil
	case OpLeS:
		return boolWord(a <= b), nil
	case OpGtS:
		return boolWord(a > b), nil
	case OpGeS:
		return boolWord(a >= b), nil
	}
	return 0, fr.trap(fmt.Sprintf("unknown opcode %d", op))
}

func boolWord(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
