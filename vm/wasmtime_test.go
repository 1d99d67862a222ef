//go:build cgo

package vm_test

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/vm"
)

// importedMemory matches the memory import every compiled module carries.
var importedMemory = regexp.MustCompile(`\(import "js" "memory" \(memory (\d+)\)\)`)

// runWasmtime runs a session through wasmtime instead of the interpreter.
// The text is assembled with Wat2Wasm, so anything the interpreter accepts
// but the wasm validator would reject fails here. Each module defines and
// exports its own memory, and the previous module's bytes are copied in to
// carry globals and the heap forward.
func runWasmtime(t *testing.T, sources ...string) (int32, string) {
	t.Helper()
	engine := wasmtime.NewEngine()
	env := compiler.NewGlobalEnv()
	var out bytes.Buffer
	var result int32
	var carried []byte
	for _, src := range sources {
		res, err := compiler.Compile(src, env)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		text := importedMemory.ReplaceAllString(res.WAT, `(memory (export "memory") $1)`)
		bin, err := wasmtime.Wat2Wasm(text)
		if err != nil {
			t.Fatalf("Wat2Wasm(%q): %v\n%s", src, err, res.WAT)
		}

		store := wasmtime.NewStore(engine)
		module, err := wasmtime.NewModule(engine, bin)
		if err != nil {
			t.Fatalf("NewModule(%q): %v", src, err)
		}
		linker := wasmtime.NewLinker(engine)
		definePrints(t, linker, &out)
		instance, err := linker.Instantiate(store, module)
		if err != nil {
			t.Fatalf("Instantiate(%q): %v", src, err)
		}
		mem := instance.GetExport(store, "memory").Memory()
		copy(mem.UnsafeData(store), carried)

		ret, err := instance.GetFunc(store, compiler.EntryFunc).Call(store)
		if err != nil {
			t.Fatalf("Call(%q): %v\n%s", src, err, res.WAT)
		}
		result = ret.(int32)
		carried = append(carried[:0], mem.UnsafeData(store)...)
		env = res.Env
	}
	return result, out.String()
}

// definePrints exposes the interpreter's print intrinsics to wasmtime so
// both runtimes format output identically.
func definePrints(t *testing.T, linker *wasmtime.Linker, w io.Writer) {
	t.Helper()
	for qualified, fn := range vm.PrintImports(w) {
		module, name, _ := strings.Cut(qualified, ".")
		fn := fn
		err := linker.FuncWrap(module, name, func(v int32) int32 {
			ret, err := fn([]int32{v})
			if err != nil {
				t.Errorf("%s: %v", qualified, err)
			}
			return ret
		})
		if err != nil {
			t.Fatalf("FuncWrap(%s): %v", qualified, err)
		}
	}
}

func TestScenariosUnderWasmtime(t *testing.T) {
	for _, tt := range scenarios {
		t.Run(tt.name, func(t *testing.T) {
			result, output := runWasmtime(t, tt.sources...)
			if result != tt.result {
				t.Errorf("result = %d, want %d", result, tt.result)
			}
			if output != tt.output {
				t.Errorf("output = %q, want %q", output, tt.output)
			}
		})
	}
}
