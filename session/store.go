package session

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/pywat/compiler"
)

// ErrCacheMiss indicates that no compile is cached for a key.
var ErrCacheMiss = errors.New("compile not cached")

// MemoryDB opens a private in-memory store.
const MemoryDB = ":memory:"

// Store keeps evaluation history and a compile cache in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Entry is one evaluated input.
type Entry struct {
	ID      int64
	Session string
	Source  string
	Display string // rendered result, empty on failure
	Error   string
	Created time.Time
}

// CachedCompile is a compile result stored under the content hash of the
// program and the fingerprint of the environment it was compiled against.
type CachedCompile struct {
	WAT    string
	Echo   string
	Result compiler.Type
	Env    *compiler.GlobalEnv // environment to commit
}

// CacheKey identifies a compile.
type CacheKey struct {
	Program  string // compiler/hash content hash
	Env      string // Fingerprint of the input environment
	Comments bool
}

// OpenStore opens or creates the store at path.
func OpenStore(path string) (*Store, error) {
	if path != MemoryDB {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			source TEXT NOT NULL,
			display TEXT NOT NULL,
			error TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS history_session ON history (session, id)`,
		`CREATE TABLE IF NOT EXISTS compile_cache (
			program_hash TEXT NOT NULL,
			env_fingerprint TEXT NOT NULL,
			comments INTEGER NOT NULL,
			wat TEXT NOT NULL,
			echo TEXT NOT NULL,
			result BLOB NOT NULL,
			env BLOB NOT NULL,
			PRIMARY KEY (program_hash, env_fingerprint, comments)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AppendHistory records an evaluated input. A zero Created is set to now.
func (s *Store) AppendHistory(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT INTO history (session, source, display, error, created_at) VALUES (?, ?, ?, ?, ?)",
		e.Session, e.Source, e.Display, e.Error, e.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// History returns the most recent entries of a session, oldest first.
// limit <= 0 returns all of them.
func (s *Store) History(session string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, session, source, display, error, created_at FROM (
			SELECT * FROM history WHERE session = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`,
		session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Source, &e.Display, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.Created = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LookupCompile returns the cached compile for key, or ErrCacheMiss.
func (s *Store) LookupCompile(key CacheKey) (*CachedCompile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c CachedCompile
	var result, env []byte
	err := s.db.QueryRow(
		"SELECT wat, echo, result, env FROM compile_cache WHERE program_hash = ? AND env_fingerprint = ? AND comments = ?",
		key.Program, key.Env, key.Comments,
	).Scan(&c.WAT, &c.Echo, &result, &env)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("querying compile cache: %w", err)
	}

	if c.Env, err = UnmarshalEnv(env); err != nil {
		return nil, err
	}
	if err := unmarshalType(result, &c.Result); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCompile stores a compile under key, replacing any previous entry.
func (s *Store) SaveCompile(key CacheKey, c *CachedCompile) error {
	env, err := MarshalEnv(c.Env)
	if err != nil {
		return fmt.Errorf("encoding env: %w", err)
	}
	result, err := encMode.Marshal(c.Result)
	if err != nil {
		return fmt.Errorf("encoding result type: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO compile_cache (program_hash, env_fingerprint, comments, wat, echo, result, env) VALUES (?, ?, ?, ?, ?, ?, ?)",
		key.Program, key.Env, key.Comments, c.WAT, c.Echo, result, env,
	)
	if err != nil {
		return fmt.Errorf("saving compile: %w", err)
	}
	return nil
}
