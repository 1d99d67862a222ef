// Package manifest handles pywat.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "pywat.toml"

// Manifest represents a pywat.toml project configuration.
type Manifest struct {
	Project Project `toml:"project" json:"project"`
	Source  Source  `toml:"source" json:"source"`
	Compile Compile `toml:"compile" json:"compile"`
	REPL    REPL    `toml:"repl" json:"repl"`
	Server  Server  `toml:"server" json:"server"`

	// Dir is the directory containing the pywat.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version,omitempty"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs" json:"dirs"`
	Entry string   `toml:"entry" json:"entry,omitempty"`
}

// Compile configures code generation.
type Compile struct {
	MemoryPages  int  `toml:"memory-pages" json:"memory-pages"`
	EmitComments bool `toml:"emit-comments" json:"emit-comments"`
}

// REPL configures interactive sessions.
type REPL struct {
	HistoryDB string `toml:"history-db" json:"history-db,omitempty"`
}

// Server configures pywat serve.
type Server struct {
	Addr string `toml:"addr" json:"addr"`
}

// Defaults used when the manifest leaves a setting out.
const (
	DefaultSourceDir   = "src"
	DefaultMemoryPages = 1
	DefaultAddr        = "localhost:8765"
)

// Default returns the configuration used when no pywat.toml is found.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{DefaultSourceDir}
	}
	if m.Compile.MemoryPages == 0 {
		m.Compile.MemoryPages = DefaultMemoryPages
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// Load parses a pywat.toml file from the given directory and validates it.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := Validate(&m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a pywat.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.path(d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry file, or "" if none is set.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return m.path(m.Source.Entry)
}

// HistoryDBPath returns the REPL history database path. It defaults to
// .pywat/history.db under the project directory.
func (m *Manifest) HistoryDBPath() string {
	if m.REPL.HistoryDB == "" {
		return m.path(filepath.Join(".pywat", "history.db"))
	}
	return m.path(m.REPL.HistoryDB)
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
