package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/session"
)

// ServiceName is the fully-qualified name of the compiler service.
const ServiceName = "pywat.v1.CompilerService"

// Procedure paths of the compiler service.
const (
	CompileProcedure        = "/" + ServiceName + "/Compile"
	CheckProcedure          = "/" + ServiceName + "/Check"
	CreateSessionProcedure  = "/" + ServiceName + "/CreateSession"
	EvalProcedure           = "/" + ServiceName + "/Eval"
	DestroySessionProcedure = "/" + ServiceName + "/DestroySession"
)

// CompilerService implements the CompilerService Connect handlers.
type CompilerService struct {
	worker   *Worker
	sessions *SessionStore
	opts     session.Options
}

// NewCompilerService creates a CompilerService.
func NewCompilerService(worker *Worker, sessions *SessionStore, opts session.Options) *CompilerService {
	return &CompilerService{
		worker:   worker,
		sessions: sessions,
		opts:     opts,
	}
}

// Compile compiles source to WAT. With a session ID the source is compiled
// against that session's environment, which is left unchanged.
func (s *CompilerService) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	if req.Msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	env, err := s.env(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := compiler.CompileWithOptions(req.Msg.Source, env, compiler.Options{Comments: req.Msg.Comments})
	if err != nil {
		return nil, toConnectError(err, req.Msg.Source)
	}

	return connect.NewResponse(&CompileResponse{
		WAT:        res.WAT,
		ResultType: res.Result.String(),
		Echo:       res.Echo,
	}), nil
}

// Check type checks source and reports the inferred type or diagnostics.
func (s *CompilerService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	env, err := s.env(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	checked, err := compiler.Check(req.Msg.Source, env)
	if err != nil {
		var cerr *compiler.Error
		if !errors.As(err, &cerr) {
			return nil, toConnectError(err, req.Msg.Source)
		}
		return connect.NewResponse(&CheckResponse{
			Diagnostics: []Diagnostic{toDiagnostic(cerr, req.Msg.Source)},
		}), nil
	}

	return connect.NewResponse(&CheckResponse{
		OK:         true,
		ResultType: checked.Result.String(),
	}), nil
}

// CreateSession starts a REPL session.
func (s *CompilerService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	sess := s.sessions.Create(req.Msg.Name)
	log.Debugf("created session %s (%q)", sess.ID(), sess.Name)
	return connect.NewResponse(&CreateSessionResponse{SessionID: sess.ID()}), nil
}

// Eval runs source in a session and commits it on success.
func (s *CompilerService) Eval(
	ctx context.Context,
	req *connect.Request[EvalRequest],
) (*connect.Response[EvalResponse], error) {
	sess, ok := s.sessions.Get(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}

	result, err := s.worker.Do(func() (interface{}, error) {
		return sess.Eval(req.Msg.Source)
	})
	if err != nil {
		return nil, toConnectError(err, req.Msg.Source)
	}

	res := result.(*session.EvalResult)
	return connect.NewResponse(&EvalResponse{
		Value:   res.Value,
		Type:    res.Type.String(),
		Display: res.Display,
		Output:  res.Output,
		Cached:  res.Cached,
	}), nil
}

// DestroySession ends a session.
func (s *CompilerService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// env returns a copy of the session's environment, or a fresh one.
func (s *CompilerService) env(sessionID string) (*compiler.GlobalEnv, error) {
	if sessionID == "" {
		env := compiler.NewGlobalEnv()
		if s.opts.MemoryPages > 0 {
			env.MemoryPages = s.opts.MemoryPages
		}
		return env, nil
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", sessionID))
	}
	env, err := s.worker.Do(func() (interface{}, error) {
		return sess.Env().Clone(), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return env.(*compiler.GlobalEnv), nil
}

// toConnectError maps compile and run failures to Connect codes. Parse and
// type errors carry the caret-annotated snippet as their message.
func toConnectError(err error, source string) error {
	var rerr *session.RuntimeError
	switch {
	case compiler.KindOf(err) == compiler.KindParse, compiler.KindOf(err) == compiler.KindType:
		return connect.NewError(connect.CodeInvalidArgument, errors.New(compiler.Render(err, source)))
	case compiler.KindOf(err) == compiler.KindInternal:
		return connect.NewError(connect.CodeInternal, err)
	case errors.As(err, &rerr):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeUnknown, err)
}

func toDiagnostic(err *compiler.Error, source string) Diagnostic {
	end := err.Span.End
	if end.Line == 0 {
		end = err.Span.Start
	}
	return Diagnostic{
		Kind:      err.Kind.String(),
		Message:   err.Msg,
		Line:      err.Span.Start.Line,
		Column:    err.Span.Start.Column,
		EndLine:   end.Line,
		EndColumn: end.Column,
		Rendered:  compiler.Render(err, source),
	}
}
