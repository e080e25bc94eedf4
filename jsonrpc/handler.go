package jsonrpc

import (
	"context"
	"errors"
	"fmt"
)

// Kind selects how a handler is run.
type Kind int

const (
	// KindSync handlers run to completion on the dispatching goroutine.
	KindSync Kind = iota + 1
	// KindAsync handlers run on their own goroutine; dispatch returns a
	// Future as soon as the task exists.
	KindAsync
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	}
	return "none"
}

// Binding selects how the module state reaches a handler.
type Binding int

const (
	// BindNone passes nothing. Sync handlers see a nil state, async
	// handlers an empty Handle.
	BindNone Binding = iota
	// BindOwned passes a private clone of the state made for the call.
	BindOwned
	// BindBorrowed passes the module's own state for the duration of a
	// sync call. Not available to async handlers.
	BindBorrowed
	// BindShared passes a Handle sharing the module state with every other
	// in-flight call. Async handlers only.
	BindShared
)

func (b Binding) String() string {
	switch b {
	case BindNone:
		return "none"
	case BindOwned:
		return "owned"
	case BindBorrowed:
		return "borrowed"
	case BindShared:
		return "shared"
	}
	return fmt.Sprintf("Binding(%d)", int(b))
}

// Handle is a copyable reference to module state given to async handlers.
// The zero Handle refers to nothing.
type Handle[C any] struct {
	state *C
	clone func(*C) C
}

// Get returns the referenced state, or nil for an empty handle.
func (h Handle[C]) Get() *C {
	return h.state
}

func (h Handle[C]) Valid() bool {
	return h.state != nil
}

// Clone returns a copy of the referenced state using the module's cloner,
// or a shallow copy when the module has none.
func (h Handle[C]) Clone() C {
	var zero C
	if h.state == nil {
		return zero
	}
	if h.clone != nil {
		return h.clone(h.state)
	}
	return *h.state
}

// SyncFunc is a handler run inline. state is nil for BindNone.
type SyncFunc[C any] func(ctx context.Context, args Args, state *C, ext Extensions) (any, error)

// AsyncFunc is a handler run as its own task. ctx is detached from the
// caller's cancellation.
type AsyncFunc[C any] func(ctx context.Context, args Args, state Handle[C], ext Extensions) (any, error)

// Handler is a handler function tagged with its kind and binding.
type Handler[C any] struct {
	kind    Kind
	binding Binding
	sync    SyncFunc[C]
	async   AsyncFunc[C]
}

func SyncHandler[C any](b Binding, fn SyncFunc[C]) Handler[C] {
	return Handler[C]{kind: KindSync, binding: b, sync: fn}
}

func AsyncHandler[C any](b Binding, fn AsyncFunc[C]) Handler[C] {
	return Handler[C]{kind: KindAsync, binding: b, async: fn}
}

func (h Handler[C]) Kind() Kind {
	return h.kind
}

func (h Handler[C]) Binding() Binding {
	return h.binding
}

func (h Handler[C]) validate(canClone bool) error {
	switch h.kind {
	case KindSync:
		if h.sync == nil {
			return errors.New("nil handler")
		}
		if h.binding == BindShared {
			return errors.New("sync handlers take BindBorrowed instead of BindShared")
		}
	case KindAsync:
		if h.async == nil {
			return errors.New("nil handler")
		}
		if h.binding == BindBorrowed {
			return errors.New("async handlers cannot borrow state; use BindShared or BindOwned")
		}
	default:
		return errors.New("no handler")
	}
	if h.binding < BindNone || h.binding > BindShared {
		return fmt.Errorf("unknown binding %v", h.binding)
	}
	if h.binding == BindOwned && !canClone {
		return errors.New("BindOwned needs WithCloner or a Clone method on the state type")
	}
	return nil
}

// Extensions carries transport metadata into handlers, such as the remote
// address or request headers. Handlers must treat it as read-only.
type Extensions map[string]any

const (
	ExtRemoteAddr = "remote_addr"
	ExtRequestID  = "request_id"
	ExtHeaders    = "headers"
	ExtTransport  = "transport"
)

// String returns the value at key if it is a string.
func (e Extensions) String(key string) string {
	s, _ := e[key].(string)
	return s
}
