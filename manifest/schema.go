package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains a decoded manifest. Paths are relative and the
// memory must leave room for at least one global beside the heap pointer.
const schemaSource = `
#Manifest: {
	project: {
		name:     =~"^[A-Za-z][A-Za-z0-9_.-]*$"
		version?: string
	}
	source: {
		dirs: [...string & !=""] & [_, ...]
		entry?: string
	}
	compile: {
		"memory-pages":  int & >=1 & <=16384
		"emit-comments": bool
	}
	repl: {
		"history-db"?: string
	}
	server: {
		addr: =~"^[^:]*:[0-9]+$"
	}
}
`

var (
	// mu serializes use of the CUE context, which is not safe for
	// concurrent use.
	mu         sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Manifest"))
	})
	return schemaCtx, schema, schemaErr
}

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	mu.Lock()
	defer mu.Unlock()

	ctx, s, err := loadSchema()
	if err != nil {
		return err
	}
	v := ctx.Encode(m)
	if err := v.Err(); err != nil {
		return err
	}
	if err := s.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
