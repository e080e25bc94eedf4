package jsonrpc

import (
	"context"
	"encoding/json"
)

// Response is the outcome of one dispatched call: a serialized result or
// an error, never both.
type Response struct {
	Result json.RawMessage
	Error  *JSONRPCError
}

// Decode unmarshals the result into v, or returns the call's error.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// code is 0 for success and the JSON-RPC error code otherwise.
func (r *Response) code() int {
	if r == nil || r.Error == nil {
		return 0
	}
	return r.Error.Code
}

func errorResponse(err *JSONRPCError) *Response {
	return &Response{Error: err}
}

func resultResponse(v any) *Response {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResponse(NewInternalError("result encoding failed: " + err.Error()))
	}
	return &Response{Result: b}
}

// Future is a pending Response. Sync handlers and early failures produce
// an already-resolved Future.
type Future struct {
	done chan struct{}
	resp *Response
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolved(r *Response) *Future {
	f := newFuture()
	f.resolve(r)
	return f
}

func (f *Future) resolve(r *Response) {
	f.resp = r
	close(f.done)
}

// Done is closed once the response is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks for the response. If ctx ends first the caller gets an
// abandoned error; the task itself keeps running to completion.
func (f *Future) Await(ctx context.Context) *Response {
	select {
	case <-f.done:
		return f.resp
	default:
	}
	select {
	case <-f.done:
		return f.resp
	case <-ctx.Done():
		return errorResponse(&JSONRPCError{
			Code:    CodeInternalError,
			Message: "call abandoned: " + ctx.Err().Error(),
		})
	}
}

// Poll returns the response without blocking.
func (f *Future) Poll() (*Response, bool) {
	select {
	case <-f.done:
		return f.resp, true
	default:
		return nil, false
	}
}
