// Package server exposes the compiler over Connect (HTTP/JSON) and the
// Language Server Protocol.
package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/pywat/session"
)

var log = commonlog.GetLogger("pywat.server")

// Server is the compiler service. All session work runs on one worker
// goroutine.
type Server struct {
	worker   *Worker
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*config)

type config struct {
	session    session.Options
	sessionTTL time.Duration
}

// WithStore records session history in store and serves compiles from its
// cache.
func WithStore(store *session.Store) Option {
	return func(c *config) { c.session.Store = store }
}

// WithMemoryPages sets the linear memory size of sessions and compiles.
func WithMemoryPages(pages int) Option {
	return func(c *config) { c.session.MemoryPages = pages }
}

// WithComments annotates session modules with source lines.
func WithComments(on bool) Option {
	return func(c *config) { c.session.Comments = on }
}

// WithSessionTTL sets how long an unused session survives.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *config) { c.sessionTTL = ttl }
}

// New creates a Server.
func New(opts ...Option) *Server {
	cfg := &config{sessionTTL: 30 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker()
	sessions := NewSessionStore(cfg.session)

	s := &Server{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	svc := NewCompilerService(worker, sessions, cfg.session)
	codec := connect.WithCodec(jsonCodec{})
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.Compile, codec))
	s.mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, svc.Check, codec))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, codec))
	s.mux.Handle(EvalProcedure, connect.NewUnaryHandler(EvalProcedure, svc.Eval, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, svc.DestroySession, codec))

	s.stopSweeper = sessions.StartSweeper(cfg.sessionTTL/6+time.Second, cfg.sessionTTL)

	return s
}

// Handler returns the HTTP handler serving the compiler service.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("pywat server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvalProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
