// Package session runs successive top-level inputs against one committed
// global environment and one persistent linear memory, as a REPL does.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/compiler/hash"
	"github.com/chazu/pywat/vm"
)

var log = commonlog.GetLogger("pywat.session")

// Options configure a session.
type Options struct {
	ID          string // history key; defaults to "default"
	MemoryPages int    // defaults to compiler.DefaultMemoryPages
	Comments    bool   // annotate emitted WAT with source lines
	Store       *Store // optional history and compile cache
}

// Session is a sequence of inputs sharing globals, classes and functions.
// A Session is not safe for concurrent use.
type Session struct {
	id    string
	env   *compiler.GlobalEnv
	mem   *vm.Memory
	opts  Options
	store *Store
}

// EvalResult is the outcome of one input.
type EvalResult struct {
	Value   int32
	Type    compiler.Type
	Display string // Value rendered by FormatValue
	Output  string // printed by the input
	WAT     string
	Cached  bool // the compile came from the store
}

// RuntimeError is a trap raised while running an input. The output printed
// before the trap is kept.
type RuntimeError struct {
	Output string
	Err    error
}

func (e *RuntimeError) Error() string { return "runtime error: " + e.Err.Error() }

func (e *RuntimeError) Unwrap() error { return e.Err }

// New creates a session with an empty environment.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = "default"
	}
	if opts.MemoryPages <= 0 {
		opts.MemoryPages = compiler.DefaultMemoryPages
	}
	s := &Session{id: opts.ID, opts: opts, store: opts.Store}
	s.Reset()
	return s
}

// FromImage restores a session saved with Image.
func FromImage(img *Image, opts Options) (*Session, error) {
	if img.Env.MemoryPages*vm.PageSize != len(img.Memory) {
		return nil, fmt.Errorf("session: image memory is %d bytes, env declares %d pages",
			len(img.Memory), img.Env.MemoryPages)
	}
	opts.MemoryPages = img.Env.MemoryPages
	s := New(opts)
	s.env = img.Env.Clone()
	s.mem.Restore(img.Memory)
	return s, nil
}

// ID returns the history key of the session.
func (s *Session) ID() string { return s.id }

// Env returns the committed environment. Callers must not modify it.
func (s *Session) Env() *compiler.GlobalEnv { return s.env }

// Image captures the committed state of the session.
func (s *Session) Image() *Image {
	return &Image{Env: s.env.Clone(), Memory: s.mem.Snapshot()}
}

// Reset discards all globals, classes and functions.
func (s *Session) Reset() {
	s.env = compiler.NewGlobalEnv()
	s.env.MemoryPages = s.opts.MemoryPages
	s.mem = vm.NewMemory(s.opts.MemoryPages)
}

// Eval compiles source against the committed environment and runs it.
// The environment is committed only when both the compile and the run
// succeed; a trap rolls memory back to its state before the run.
func (s *Session) Eval(source string) (*EvalResult, error) {
	res, err := s.eval(source)
	s.record(source, res, err)
	return res, err
}

func (s *Session) eval(source string) (*EvalResult, error) {
	compiled, key, err := s.compile(source)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	snap := s.mem.Snapshot()
	value, err := vm.Run(compiled.WAT, s.mem, &out, compiler.EntryFunc)
	if err != nil {
		s.mem.Restore(snap)
		log.Debugf("session %s: run failed, memory restored: %s", s.id, err)
		return nil, &RuntimeError{Output: out.String(), Err: err}
	}

	if s.store != nil && key != nil && !compiled.cached {
		if err := s.store.SaveCompile(*key, &compiled.CachedCompile); err != nil {
			log.Warningf("session %s: %s", s.id, err)
		}
	}
	s.env = compiled.Env

	return &EvalResult{
		Value:   value,
		Type:    compiled.Result,
		Display: FormatValue(compiled.Result, value),
		Output:  out.String(),
		WAT:     compiled.WAT,
		Cached:  compiled.cached,
	}, nil
}

type compiled struct {
	CachedCompile
	cached bool
}

// compile consults the store before compiling. The returned key is nil
// when the store is not in use.
func (s *Session) compile(source string) (*compiled, *CacheKey, error) {
	key, err := s.cacheKey(source)
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		c, err := s.store.LookupCompile(*key)
		if err == nil {
			log.Debugf("session %s: compile cache hit %s", s.id, key.Program[:12])
			return &compiled{CachedCompile: *c, cached: true}, key, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Warningf("session %s: %s", s.id, err)
		}
	}

	res, err := compiler.CompileWithOptions(source, s.env, compiler.Options{Comments: s.opts.Comments})
	if err != nil {
		return nil, nil, err
	}
	return &compiled{CachedCompile: CachedCompile{
		WAT:    res.WAT,
		Echo:   res.Echo,
		Result: res.Result,
		Env:    res.Env,
	}}, key, nil
}

// cacheKey type checks source and keys it by its content hash. The hash
// only identifies programs that check, so a failing check is returned as
// the compile error. There is no key without a store, or when comments are
// on: line comments depend on positions, which the hash ignores.
func (s *Session) cacheKey(source string) (*CacheKey, error) {
	if s.store == nil || s.opts.Comments {
		return nil, nil
	}
	checked, err := compiler.Check(source, s.env)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(s.env)
	if err != nil {
		log.Warningf("session %s: %s", s.id, err)
		return nil, nil
	}
	return &CacheKey{
		Program:  hash.Hex(hash.HashProgram(checked.Program)),
		Env:      fp,
		Comments: s.opts.Comments,
	}, nil
}

func (s *Session) record(source string, res *EvalResult, err error) {
	if s.store == nil {
		return
	}
	e := Entry{Session: s.id, Source: source}
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Display = res.Display
	}
	if err := s.store.AppendHistory(e); err != nil {
		log.Warningf("session %s: %s", s.id, err)
	}
}

// History returns the recorded inputs of this session, oldest first.
func (s *Session) History(limit int) ([]Entry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.History(s.id, limit)
}

// FormatValue renders a result word by its static type.
func FormatValue(t compiler.Type, v int32) string {
	switch t.Kind {
	case compiler.TypeBool:
		return vm.FormatBool(v)
	case compiler.TypeNone:
		return "None"
	case compiler.TypeClass:
		return fmt.Sprintf("<%s object>", t.Name)
	}
	return strconv.Itoa(int(v))
}
