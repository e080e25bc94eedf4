package client

import (
	"context"
	"encoding/json"

	"github.com/mnehpets/openspec/jsonrpc"
)

// Local calls a Dispatcher in the same process without serialising the
// request envelope.
type Local struct {
	d   jsonrpc.Dispatcher
	ext jsonrpc.Extensions
}

func NewLocal(d jsonrpc.Dispatcher) *Local {
	return &Local{d: d, ext: jsonrpc.Extensions{jsonrpc.ExtTransport: "local"}}
}

func (l *Local) Call(ctx context.Context, method string, params json.RawMessage, reply any) error {
	resp := l.d.DispatchAsync(ctx, method, params, l.ext).Await(ctx)
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return &TransportError{Method: method, Err: err}
	}
	return nil
}

var _ Caller = (*Local)(nil)
