package vm

import (
	"fmt"
	"io"
)

// FormatBool renders a boolean word the way the language prints it.
func FormatBool(v int32) string {
	if v != 0 {
		return "True"
	}
	return "False"
}

// PrintImports returns the four print intrinsics, writing one line per call
// to w. Each intrinsic returns its argument.
func PrintImports(w io.Writer) map[string]HostFunc {
	line := func(format func(int32) string) HostFunc {
		return func(args []int32) (int32, error) {
			if len(args) != 1 {
				return 0, fmt.Errorf("vm: print intrinsic takes 1 argument, got %d", len(args))
			}
			if _, err := fmt.Fprintln(w, format(args[0])); err != nil {
				return 0, err
			}
			return args[0], nil
		}
	}
	return map[string]HostFunc{
		"imports.print_num":  line(func(v int32) string { return fmt.Sprint(v) }),
		"imports.print_bool": line(FormatBool),
		"imports.print_none": line(func(int32) string { return "None" }),
		"imports.print":      line(func(v int32) string { return fmt.Sprintf("<object at %d>", v) }),
	}
}

// Run parses text, instantiates it against mem and the print intrinsics, and
// calls the export entry.
func Run(text string, mem *Memory, out io.Writer, entry string) (int32, error) {
	mod, err := ParseModule(text)
	if err != nil {
		return 0, err
	}
	inst, err := Instantiate(mod, Imports{Funcs: PrintImports(out), Memory: mem})
	if err != nil {
		return 0, err
	}
	return inst.Call(entry)
}
