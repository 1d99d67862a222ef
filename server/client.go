package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a CompilerService over Connect with the JSON codec.
type Client struct {
	compile        *connect.Client[CompileRequest, CompileResponse]
	check          *connect.Client[CheckRequest, CheckResponse]
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	eval           *connect.Client[EvalRequest, EvalResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
}

// NewClient creates a client for the service at baseURL, for example
// "http://localhost:8765".
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := connect.WithCodec(jsonCodec{})
	return &Client{
		compile:        connect.NewClient[CompileRequest, CompileResponse](httpClient, baseURL+CompileProcedure, opt),
		check:          connect.NewClient[CheckRequest, CheckResponse](httpClient, baseURL+CheckProcedure, opt),
		createSession:  connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opt),
		eval:           connect.NewClient[EvalRequest, EvalResponse](httpClient, baseURL+EvalProcedure, opt),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](httpClient, baseURL+DestroySessionProcedure, opt),
	}
}

func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	res, err := c.compile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	res, err := c.check.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	res, err := c.createSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Eval(ctx context.Context, req *EvalRequest) (*EvalResponse, error) {
	res, err := c.eval.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) DestroySession(ctx context.Context, req *DestroySessionRequest) (*DestroySessionResponse, error) {
	res, err := c.destroySession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
