package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/pywat/session"
)

// Session is a REPL session owned by the server. Its embedded session is
// only touched on the worker goroutine.
type Session struct {
	*session.Session
	Name    string
	Created time.Time

	lastUsed time.Time
}

// SessionStore manages server sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     session.Options
}

// NewSessionStore creates a session store. Every session is created with
// opts, apart from its ID.
func NewSessionStore(opts session.Options) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	opts := s.opts
	opts.ID = uuid.NewString()

	now := time.Now()
	sess := &Session{
		Session:  session.New(opts),
		Name:     name,
		Created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[opts.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		sess.lastUsed = time.Now()
	}
	return sess, ok
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Infof("swept %d idle sessions", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// It returns a function that stops the sweeper.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
