package server

// Messages of pywat.v1.CompilerService, carried as JSON.

type CompileRequest struct {
	Source    string `json:"source"`
	SessionID string `json:"sessionId,omitempty"` // compile against this session without committing
	Comments  bool   `json:"comments,omitempty"`
}

type CompileResponse struct {
	WAT        string `json:"wat"`
	ResultType string `json:"resultType"`
	Echo       string `json:"echo"`
}

type CheckRequest struct {
	Source    string `json:"source"`
	SessionID string `json:"sessionId,omitempty"`
}

// CheckResponse carries the inferred type, or the diagnostics when the
// source does not check.
type CheckResponse struct {
	OK          bool         `json:"ok"`
	ResultType  string       `json:"resultType,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Diagnostic is a compile error with its 1-based source range.
type Diagnostic struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Rendered  string `json:"rendered"`
}

type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type EvalRequest struct {
	SessionID string `json:"sessionId"`
	Source    string `json:"source"`
}

type EvalResponse struct {
	Value   int32  `json:"value"`
	Type    string `json:"type"`
	Display string `json:"display"`
	Output  string `json:"output"`
	Cached  bool   `json:"cached,omitempty"`
}

type DestroySessionRequest struct {
	SessionID string `json:"sessionId"`
}

type DestroySessionResponse struct{}
