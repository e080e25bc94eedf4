// Package client calls JSON-RPC methods from Go.
//
// A Caller moves one call over some transport: HTTPClient speaks JSON-RPC
// over HTTP, Local dispatches straight into an in-process module. The
// generic helpers on top encode arguments positionally and decode the
// result into the declared response type.
//
//	sum, err := client.Call[int](ctx, c, "add", 2, 3)
//
// Checked calls return a *TransportError when no response was obtained
// and an *RPCError when the server answered with an error. Unchecked calls
// panic on either.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mnehpets/openspec/jsonrpc"
)

// Caller issues one JSON-RPC call. params is the encoded params member and
// reply receives the decoded result. A null result leaves reply unchanged.
type Caller interface {
	Call(ctx context.Context, method string, params json.RawMessage, reply any) error
}

// TransportError reports a call that produced no usable response.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RPCError is an error response sent by the server.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Call invokes method with args in declaration order and decodes the
// result as R.
func Call[R any](ctx context.Context, c Caller, method string, args ...any) (R, error) {
	var reply R
	params, err := jsonrpc.EncodeParams(args...)
	if err != nil {
		return reply, &TransportError{Method: method, Err: fmt.Errorf("encode params: %w", err)}
	}
	if err := c.Call(ctx, method, params, &reply); err != nil {
		var rpcErr *RPCError
		var tErr *TransportError
		if errors.As(err, &rpcErr) || errors.As(err, &tErr) {
			return reply, err
		}
		return reply, &TransportError{Method: method, Err: err}
	}
	return reply, nil
}

// MustCall is Call that panics on failure.
func MustCall[R any](ctx context.Context, c Caller, method string, args ...any) R {
	r, err := Call[R](ctx, c, method, args...)
	if err != nil {
		panic(err)
	}
	return r
}

// Stub names a remote method returning R.
//
//	var getUser = client.Stub[*User]{Method: "get_user"}
//	u, err := getUser.Request(ctx, c, 7)
type Stub[R any] struct {
	Method string
}

func (s Stub[R]) Request(ctx context.Context, c Caller, args ...any) (R, error) {
	return Call[R](ctx, c, s.Method, args...)
}

func (s Stub[R]) RequestUnchecked(ctx context.Context, c Caller, args ...any) R {
	return MustCall[R](ctx, c, s.Method, args...)
}
