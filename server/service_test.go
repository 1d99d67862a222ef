package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/pywat/session"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return NewClient(ts.Client(), ts.URL)
}

func codeOf(err error) connect.Code {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Code()
	}
	return 0
}

func TestCompile(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Compile(ctx, &CompileRequest{Source: "def f(x:int, y:int)->bool:\n  return x <= y\nf(3, 5)\n"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultType != "bool" || res.Echo != "print_bool" {
		t.Errorf("result = %s via %s", res.ResultType, res.Echo)
	}
	if !strings.Contains(res.WAT, `(export "exported_func")`) {
		t.Errorf("WAT has no entry export:\n%s", res.WAT)
	}

	_, err = c.Compile(ctx, &CompileRequest{Source: "x:int = 1\nx = None\n"})
	if codeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
	if !strings.Contains(err.Error(), "^") {
		t.Errorf("error has no caret snippet: %v", err)
	}

	_, err = c.Compile(ctx, &CompileRequest{})
	if codeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("empty source: %v", err)
	}
}

func TestCheck(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		ok     bool
		result string
		line   int
	}{
		{"scenario A", "x:int = 5\nx = x + 1\nprint(x)\n", true, "None", 0},
		{"expression", "1 < 2\n", true, "bool", 0},
		{"scenario C", "class C(object):\n    pass\nx:C = None\nx is None\n", false, "", 4},
		{"scenario D", "x:int = 1\nx = True\n", false, "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Check(ctx, &CheckRequest{Source: tt.source})
			if err != nil {
				t.Fatal(err)
			}
			if res.OK != tt.ok || res.ResultType != tt.result {
				t.Errorf("Check = %+v", res)
			}
			if tt.ok {
				return
			}
			if len(res.Diagnostics) != 1 {
				t.Fatalf("got %d diagnostics, want 1", len(res.Diagnostics))
			}
			d := res.Diagnostics[0]
			if d.Kind != "type error" || d.Line != tt.line || d.Rendered == "" {
				t.Errorf("diagnostic = %+v", d)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateSession(ctx, &CreateSessionRequest{Name: "scratch"})
	if err != nil {
		t.Fatal(err)
	}
	id := created.SessionID

	steps := []struct {
		source  string
		display string
		output  string
	}{
		{"x:int = 40\nclass C(object):\n    n:int = 2\nc:C = None\n", "None", ""},
		{"print(x)\nx + c.n\n", "42", "40\n"},
		{"c\n", "<C object>", ""},
	}
	for _, step := range steps {
		res, err := c.Eval(ctx, &EvalRequest{SessionID: id, Source: step.source})
		if err != nil {
			t.Fatalf("Eval(%q): %v", step.source, err)
		}
		if res.Display != step.display || res.Output != step.output {
			t.Errorf("Eval(%q) = %+v", step.source, res)
		}
	}

	// A compile against the session sees its globals without committing.
	if _, err := c.Compile(ctx, &CompileRequest{SessionID: id, Source: "y:int = x\n"}); codeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("initializer from a variable accepted: %v", err)
	}
	if _, err := c.Compile(ctx, &CompileRequest{SessionID: id, Source: "z:int = 1\nz + x\n"}); err != nil {
		t.Errorf("compile against session: %v", err)
	}
	if _, err := c.Eval(ctx, &EvalRequest{SessionID: id, Source: "z\n"}); codeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("compile committed into the session: %v", err)
	}

	_, err = c.Eval(ctx, &EvalRequest{SessionID: id, Source: "x // 0\n"})
	if codeOf(err) != connect.CodeAborted {
		t.Errorf("trap: %v", err)
	}
	if res, err := c.Eval(ctx, &EvalRequest{SessionID: id, Source: "x\n"}); err != nil || res.Value != 40 {
		t.Errorf("after trap: %+v, %v", res, err)
	}

	if _, err := c.DestroySession(ctx, &DestroySessionRequest{SessionID: id}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Eval(ctx, &EvalRequest{SessionID: id, Source: "x\n"}); codeOf(err) != connect.CodeNotFound {
		t.Errorf("eval in destroyed session: %v", err)
	}
	if _, err := c.DestroySession(ctx, &DestroySessionRequest{SessionID: id}); codeOf(err) != connect.CodeNotFound {
		t.Errorf("destroying twice: %v", err)
	}
}

func TestEvalWithStore(t *testing.T) {
	store, err := session.OpenStore(session.MemoryDB)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	c := newTestClient(t, WithStore(store), WithMemoryPages(2))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		created, err := c.CreateSession(ctx, &CreateSessionRequest{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, created.SessionID)
	}
	if ids[0] == ids[1] {
		t.Fatal("session IDs collide")
	}

	first, err := c.Eval(ctx, &EvalRequest{SessionID: ids[0], Source: "a:int = 3\na * 7\n"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Eval(ctx, &EvalRequest{SessionID: ids[1], Source: "a:int = 3\na * 7\n"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !second.Cached || second.Value != 21 {
		t.Errorf("first = %+v, second = %+v", first, second)
	}

	entries, err := store.History(ids[0], 0)
	if err != nil || len(entries) != 1 {
		t.Errorf("history = %v, %v", entries, err)
	}
}

func TestSessionSweep(t *testing.T) {
	store := NewSessionStore(session.Options{})
	idle := store.Create("idle")
	fresh := store.Create("fresh")
	idle.lastUsed = time.Now().Add(-time.Hour)

	if n := store.Sweep(time.Minute); n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}
	if _, ok := store.Get(idle.ID()); ok {
		t.Error("idle session survived the sweep")
	}
	if _, ok := store.Get(fresh.ID()); !ok {
		t.Error("fresh session was swept")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestWorker(t *testing.T) {
	w := NewWorker()

	v, err := w.Do(func() (interface{}, error) { return 7, nil })
	if err != nil || v.(int) != 7 {
		t.Errorf("Do = %v, %v", v, err)
	}

	_, err = w.Do(func() (interface{}, error) { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("panic error = %v", err)
	}

	w.Stop()
	if _, err := w.Do(func() (interface{}, error) { return nil, nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop = %v", err)
	}
}
