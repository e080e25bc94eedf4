package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mnehpets/openspec/spec"
)

// Dispatcher is what transports need from a module.
type Dispatcher interface {
	// DispatchAsync starts a call and returns its pending response.
	DispatchAsync(ctx context.Context, method string, params json.RawMessage, ext Extensions) *Future
	// Seal ends the registration phase.
	Seal()
}

const (
	discoverMethod = "rpc.discover"
	unknownMethod  = "rpc.unknown"
)

type entry[C any] struct {
	name    string
	params  []Param
	handler Handler[C]
}

// Module is a registry of methods sharing one state value of type C.
//
// Methods are registered from a single goroutine during setup. The first
// dispatch, or an explicit Seal, ends registration; from then on the
// method table is read-only and calls may be dispatched concurrently.
type Module[C any] struct {
	info    spec.Info
	state   *C
	clone   func(*C) C
	opts    options
	log     *zap.Logger
	methods map[string]*entry[C]
	order   []string
	agg     spec.Aggregator
	sem     *semaphore.Weighted

	sealed atomic.Bool

	// mu orders task admission against Shutdown.
	mu      sync.Mutex
	closing bool
	tasks   sync.WaitGroup
}

// New creates a module owning state. The state must be fully built; it is
// never replaced, and is copied only for BindOwned handlers.
//
// New panics if WithCloner was given a function for another state type.
func New[C any](info spec.Info, state C, opts ...Option) *Module[C] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Module[C]{
		info:    info,
		state:   &state,
		opts:    o,
		log:     o.logger,
		methods: make(map[string]*entry[C]),
	}

	switch c := o.cloner.(type) {
	case nil:
		if _, ok := any(m.state).(interface{ Clone() C }); ok {
			m.clone = func(s *C) C { return any(s).(interface{ Clone() C }).Clone() }
		}
	case func(*C) C:
		m.clone = c
	default:
		panic(fmt.Sprintf("jsonrpc: WithCloner function %T does not match state type", o.cloner))
	}

	if o.maxAsync > 0 {
		m.sem = semaphore.NewWeighted(o.maxAsync)
	}
	for _, s := range o.servers {
		m.agg.AddServer(s)
	}
	m.agg.SetComponents(o.components)
	if o.discovery {
		m.methods[discoverMethod] = &entry[C]{
			name: discoverMethod,
			handler: SyncHandler(BindNone, func(context.Context, Args, *C, Extensions) (any, error) {
				return m.Spec(), nil
			}),
		}
	}
	return m
}

// State returns the module's state.
func (m *Module[C]) State() *C {
	return m.state
}

// Register adds a method. On error the module is unchanged.
func (m *Module[C]) Register(d Descriptor[C]) error {
	name := d.Name()
	fail := func(err error) error {
		m.log.Debug("jsonrpc: method rejected", zap.String("method", name), zap.Error(err))
		return &RegistrationError{Method: name, Err: err}
	}

	if m.sealed.Load() {
		return fail(ErrSealed)
	}
	switch {
	case name == "":
		return fail(fmt.Errorf("%w: empty method name", ErrUnsupportedShape))
	case strings.HasPrefix(name, "rpc."):
		return fail(fmt.Errorf("%w: names starting with rpc. are reserved", ErrUnsupportedShape))
	}
	if _, exists := m.methods[name]; exists {
		return fail(ErrDuplicateMethod)
	}

	h := d.Handler()
	if err := h.validate(m.clone != nil); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrUnsupportedShape, err))
	}
	params := d.Params()
	if err := validateParams(params); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrUnsupportedShape, err))
	}
	ms, err := d.Spec(m.opts.generator)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrUnsupportedShape, err))
	}
	if ms.Name != name {
		return fail(fmt.Errorf("%w: spec names method %q", ErrUnsupportedShape, ms.Name))
	}

	m.methods[name] = &entry[C]{name: name, params: params, handler: h}
	m.order = append(m.order, name)
	m.agg.Add(ms)
	m.log.Debug("jsonrpc: method registered",
		zap.String("method", name),
		zap.Stringer("kind", h.Kind()),
		zap.Stringer("binding", h.Binding()),
		zap.Int("params", len(params)))
	return nil
}

// MustRegister registers each descriptor and panics on the first failure.
func (m *Module[C]) MustRegister(ds ...Descriptor[C]) *Module[C] {
	for _, d := range ds {
		if err := m.Register(d); err != nil {
			panic(err)
		}
	}
	return m
}

func validateParams(params []Param) error {
	var errs error
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		switch {
		case p.Name == "":
			errs = multierr.Append(errs, fmt.Errorf("param #%d has no name", i))
		case seen[p.Name]:
			errs = multierr.Append(errs, fmt.Errorf("param %q declared twice", p.Name))
		}
		seen[p.Name] = true
		if p.Type == nil {
			errs = multierr.Append(errs, fmt.Errorf("param %q has no type", p.Name))
			continue
		}
		if err := spec.CheckType(p.Type); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("param %q: %w", p.Name, err))
		}
	}
	return errs
}

// Seal ends registration. Calling it more than once is harmless.
func (m *Module[C]) Seal() {
	if m.sealed.CompareAndSwap(false, true) {
		m.log.Info("jsonrpc: module sealed", zap.Int("methods", len(m.order)))
	}
}

func (m *Module[C]) Sealed() bool {
	return m.sealed.Load()
}

// Len returns the number of registered methods.
func (m *Module[C]) Len() int {
	return len(m.order)
}

// Methods returns method names in registration order.
func (m *Module[C]) Methods() []string {
	return append([]string(nil), m.order...)
}

// Spec returns the OpenRPC document for the registered methods.
func (m *Module[C]) Spec() spec.Document {
	return m.agg.Document(m.info)
}

// Export writes the OpenRPC document to path. See spec.Document.WriteFile.
func (m *Module[C]) Export(path string) error {
	return m.Spec().WriteFile(path)
}

// Dispatch runs a call and waits for its response.
func (m *Module[C]) Dispatch(ctx context.Context, method string, params json.RawMessage, ext Extensions) *Response {
	return m.DispatchAsync(ctx, method, params, ext).Await(ctx)
}

// DispatchAsync starts a call. Unknown methods and undecodable params
// resolve immediately without running any handler. Sync handlers have run
// by the time it returns; async handlers have been scheduled.
func (m *Module[C]) DispatchAsync(ctx context.Context, method string, params json.RawMessage, ext Extensions) *Future {
	m.Seal()

	e, ok := m.methods[method]
	if !ok {
		m.opts.observer.Observe(unknownMethod, 0, CodeMethodNotFound, 0)
		return resolved(errorResponse(NewMethodNotFoundError("method not found: " + method)))
	}

	args, err := DecodeParams(params, e.params, m.opts.strict)
	if err != nil {
		rpcErr := mapError(err)
		m.opts.observer.Observe(e.name, e.handler.kind, rpcErr.Code, 0)
		return resolved(errorResponse(rpcErr))
	}

	switch e.handler.kind {
	case KindSync:
		return resolved(m.call(ctx, e, args, ext, Handle[C]{}))
	case KindAsync:
		return m.spawn(ctx, e, args, ext)
	}
	return resolved(errorResponse(NewInternalError("no handler")))
}

func (m *Module[C]) spawn(ctx context.Context, e *entry[C], args Args, ext Extensions) *Future {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return resolved(errorResponse(NewInternalError("module shutting down")))
	}
	m.tasks.Add(1)
	m.mu.Unlock()

	h, resp := m.asyncHandle(e)
	if resp != nil {
		m.tasks.Done()
		return resolved(resp)
	}

	f := newFuture()
	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer m.tasks.Done()
		if m.sem != nil {
			if err := m.sem.Acquire(taskCtx, 1); err != nil {
				f.resolve(errorResponse(NewInternalError(err.Error())))
				return
			}
			defer m.sem.Release(1)
		}
		f.resolve(m.call(taskCtx, e, args, ext, h))
	}()
	return f
}

// asyncHandle builds the state handle for an async call on the
// dispatching goroutine, so owned clones reflect the state at dispatch.
func (m *Module[C]) asyncHandle(e *entry[C]) (h Handle[C], resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("jsonrpc: state clone panic", zap.String("method", e.name), zap.Any("panic", r))
			resp = errorResponse(NewInternalError("internal error"))
		}
	}()
	switch e.handler.binding {
	case BindShared:
		return Handle[C]{state: m.state, clone: m.clone}, nil
	case BindOwned:
		c := m.clone(m.state)
		return Handle[C]{state: &c, clone: m.clone}, nil
	}
	return Handle[C]{}, nil
}

func (m *Module[C]) syncState(b Binding) *C {
	switch b {
	case BindBorrowed:
		return m.state
	case BindOwned:
		c := m.clone(m.state)
		return &c
	}
	return nil
}

func (m *Module[C]) call(ctx context.Context, e *entry[C], args Args, ext Extensions, h Handle[C]) (resp *Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("jsonrpc: handler panic",
				zap.String("method", e.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp = errorResponse(NewInternalError("internal error"))
		}
		m.opts.observer.Observe(e.name, e.handler.kind, resp.code(), time.Since(start))
	}()

	var (
		result any
		err    error
	)
	switch e.handler.kind {
	case KindSync:
		result, err = e.handler.sync(ctx, args, m.syncState(e.handler.binding), ext)
	case KindAsync:
		result, err = e.handler.async(ctx, args, h, ext)
	}
	if err != nil {
		rpcErr := mapError(err)
		if rpcErr.Code == CodeInternalError {
			m.log.Warn("jsonrpc: handler failed", zap.String("method", e.name), zap.Error(err))
		}
		return errorResponse(rpcErr)
	}
	return resultResponse(result)
}

// Shutdown stops accepting async calls and waits for running ones.
func (m *Module[C]) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("jsonrpc: shutdown: tasks still running"), ctx.Err())
	}
}
