package compiler

import (
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/pywat/syntax"
)

var log = commonlog.GetLogger("pywat.compiler")

// Result is a successful compile.
type Result struct {
	*Output
	Program *Program
	Env     *GlobalEnv // environment to commit if the module runs
}

// Compile parses, checks and generates source against env. env is never
// modified; on success the caller decides whether to commit Result.Env.
func Compile(source string, env *GlobalEnv) (*Result, error) {
	return CompileWithOptions(source, env, Options{})
}

// CompileWithOptions is Compile with explicit code generation options.
func CompileWithOptions(source string, env *GlobalEnv, opts Options) (*Result, error) {
	start := time.Now()
	prog, err := ParseWithClasses(source, env.ClassNames())
	if err != nil {
		return nil, err
	}
	parsed := time.Now()

	checked, err := TypeCheck(prog, env)
	if err != nil {
		return nil, err
	}
	typed := time.Now()

	out, next, err := GenerateWithOptions(checked, env, opts)
	if err != nil {
		return nil, err
	}
	log.Debugf("compiled %d bytes: parse %s, check %s, codegen %s",
		len(source), parsed.Sub(start), typed.Sub(parsed), time.Since(typed))

	return &Result{Output: out, Program: prog, Env: next}, nil
}

// Check parses and type checks source against env without generating code.
func Check(source string, env *GlobalEnv) (*Checked, error) {
	prog, err := ParseWithClasses(source, env.ClassNames())
	if err != nil {
		return nil, err
	}
	return TypeCheck(prog, env)
}

// ParseCST exposes the concrete syntax tree for debugging tools.
func ParseCST(source string) (*syntax.Tree, error) {
	return syntax.Parse(source)
}
