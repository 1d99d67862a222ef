package compiler

import (
	"maps"
	"reflect"
	"slices"
	"sort"
)

// WordSize is the size in bytes of one storage word.
const WordSize = 4

// PageSize is the size in bytes of one linear-memory page.
const PageSize = 65536

// DefaultMemoryPages is the imported memory size when none is configured.
const DefaultMemoryPages = 1

// FieldInfo describes one field of a class layout.
type FieldInfo struct {
	Name    string
	Type    Type
	Offset  int   // word offset inside the instance
	Default int32 // initial value for scalar fields
}

// ParamInfo is a named, typed parameter.
type ParamInfo struct {
	Name string
	Type Type
}

// Signature describes a method or top-level function.
type Signature struct {
	Name   string
	Params []ParamInfo // excludes self
	Return Type
	Symbol string // emitted function name without the leading $
}

// ClassInfo is the registry entry of a class.
type ClassInfo struct {
	Name    string
	Fields  []FieldInfo
	Methods map[string]*Signature
}

// Field looks up a field by name.
func (c *ClassInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// MethodNames returns the method names in sorted order.
func (c *ClassInfo) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GlobalEnv is the state carried between successive top-level compiles.
// A compile never mutates its input; it works on a Clone and the caller
// commits the result.
type GlobalEnv struct {
	Types       map[string]Type       // global variable types
	Offsets     map[string]int        // global variable word offsets
	Aliases     map[string]string     // alias -> global whose storage it shares
	ClassSizes  map[string]int        // instance sizes in words
	Classes     map[string]*ClassInfo // class registry
	Funcs       map[string]*Signature // top-level functions
	MethodSigs  map[string]string     // symbol -> emitted signature
	Bodies      map[string]string     // symbol -> emitted function text
	Offset      int                   // next free word
	MemoryPages int
}

// NewGlobalEnv returns an empty environment. Word 0 is reserved so that
// no object is ever placed at address 0, which is None.
func NewGlobalEnv() *GlobalEnv {
	return &GlobalEnv{
		Types:       make(map[string]Type),
		Offsets:     make(map[string]int),
		Aliases:     make(map[string]string),
		ClassSizes:  make(map[string]int),
		Classes:     make(map[string]*ClassInfo),
		Funcs:       make(map[string]*Signature),
		MethodSigs:  make(map[string]string),
		Bodies:      make(map[string]string),
		Offset:      1,
		MemoryPages: DefaultMemoryPages,
	}
}

// Clone returns a deep copy of env.
func (env *GlobalEnv) Clone() *GlobalEnv {
	out := &GlobalEnv{
		Types:       maps.Clone(env.Types),
		Offsets:     maps.Clone(env.Offsets),
		Aliases:     maps.Clone(env.Aliases),
		ClassSizes:  maps.Clone(env.ClassSizes),
		Classes:     make(map[string]*ClassInfo, len(env.Classes)),
		Funcs:       make(map[string]*Signature, len(env.Funcs)),
		MethodSigs:  maps.Clone(env.MethodSigs),
		Bodies:      maps.Clone(env.Bodies),
		Offset:      env.Offset,
		MemoryPages: env.MemoryPages,
	}
	for k, v := range env.Classes {
		out.Classes[k] = v.clone()
	}
	for k, v := range env.Funcs {
		out.Funcs[k] = v.clone()
	}
	return out
}

func (c *ClassInfo) clone() *ClassInfo {
	out := &ClassInfo{
		Name:    c.Name,
		Fields:  slices.Clone(c.Fields),
		Methods: make(map[string]*Signature, len(c.Methods)),
	}
	for k, v := range c.Methods {
		out.Methods[k] = v.clone()
	}
	return out
}

func (s *Signature) clone() *Signature {
	out := *s
	out.Params = slices.Clone(s.Params)
	return &out
}

// Equal reports whether two environments hold the same state.
func (env *GlobalEnv) Equal(other *GlobalEnv) bool {
	return reflect.DeepEqual(env, other)
}

// HeapPointerAddr is the byte address of the heap pointer cell, the last
// word of memory.
func (env *GlobalEnv) HeapPointerAddr() int {
	return env.MemoryPages*PageSize - WordSize
}

// ClassNames returns the registered class names in sorted order.
func (env *GlobalEnv) ClassNames() []string {
	return sortedKeys(env.Classes)
}

// GlobalNames returns the global variable names in sorted order.
func (env *GlobalEnv) GlobalNames() []string {
	return sortedKeys(env.Types)
}

// FuncNames returns the top-level function names in sorted order.
func (env *GlobalEnv) FuncNames() []string {
	return sortedKeys(env.Funcs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
