package jsonrpc

import (
	"go.uber.org/zap"

	"github.com/mnehpets/openspec/spec"
)

type options struct {
	strict     bool
	logger     *zap.Logger
	observer   Observer
	generator  spec.SchemaGenerator
	maxAsync   int64
	cloner     any
	discovery  bool
	servers    []spec.Server
	components *spec.Components
}

func defaultOptions() options {
	return options{
		strict:    true,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
		generator: spec.NewReflectGenerator(),
	}
}

// Option configures a Module.
type Option func(*options)

// WithStrictParams selects whether unexpected params are an error (the
// default) or ignored.
func WithStrictParams(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver reports every completed call to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSchemaGenerator replaces the reflection based schema generator.
func WithSchemaGenerator(g spec.SchemaGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.generator = g
		}
	}
}

// WithMaxConcurrency caps the number of async handlers running at once.
// Excess tasks wait for a slot. n <= 0 means no cap.
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.maxAsync = int64(n)
	}
}

// WithCloner sets the function used to copy state for BindOwned handlers.
// C must match the module's state type.
func WithCloner[C any](fn func(*C) C) Option {
	return func(o *options) {
		o.cloner = fn
	}
}

// WithDiscovery serves the module's OpenRPC document from the reserved
// rpc.discover method.
func WithDiscovery() Option {
	return func(o *options) {
		o.discovery = true
	}
}

// WithServers lists servers in the generated document.
func WithServers(servers ...spec.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithComponents attaches reusable components, such as shared error
// definitions, to the generated document.
func WithComponents(c *spec.Components) Option {
	return func(o *options) {
		o.components = c
	}
}
