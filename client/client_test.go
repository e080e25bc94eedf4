package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mnehpets/openspec/jsonrpc"
	"github.com/mnehpets/openspec/spec"
)

type item struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Note *string `json:"note"`
}

func newModule() *jsonrpc.Module[struct{}] {
	m := jsonrpc.New(spec.NewInfo("client-test", "1.0.0"), struct{}{})
	m.MustRegister(
		jsonrpc.NewMethod[struct{}]("add").
			Param(jsonrpc.Arg[int]("a"), jsonrpc.Arg[int]("b")).
			Returns(reflect.TypeFor[int]()).
			Sync(jsonrpc.BindNone, func(_ context.Context, args jsonrpc.Args, _ *struct{}, _ jsonrpc.Extensions) (any, error) {
				return jsonrpc.At[int](args, 0) + jsonrpc.At[int](args, 1), nil
			}),
		jsonrpc.NewMethod[struct{}]("item").
			Param(jsonrpc.Arg[int]("id")).
			Returns(reflect.TypeFor[*item]()).
			Async(jsonrpc.BindNone, func(_ context.Context, args jsonrpc.Args, _ jsonrpc.Handle[struct{}], _ jsonrpc.Extensions) (any, error) {
				id := jsonrpc.At[int](args, 0)
				if id == 0 {
					return nil, nil
				}
				if id < 0 {
					return nil, &jsonrpc.JSONRPCError{Code: -32004, Message: "no such item", Data: id}
				}
				return &item{ID: id, Name: "widget"}, nil
			}),
		jsonrpc.NewMethod[struct{}]("header").
			Param(jsonrpc.Arg[string]("name")).
			Returns(reflect.TypeFor[string]()).
			Sync(jsonrpc.BindNone, func(_ context.Context, args jsonrpc.Args, _ *struct{}, ext jsonrpc.Extensions) (any, error) {
				h, _ := ext[jsonrpc.ExtHeaders].(http.Header)
				return h.Get(jsonrpc.At[string](args, 0)), nil
			}),
	)
	return m
}

// startServer serves m on an ephemeral port and returns a client for it.
func startServer(t *testing.T, m jsonrpc.Dispatcher, opts ...Option) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(jsonrpc.NewServer(m))
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL, opts...)
}

func callers(t *testing.T) map[string]Caller {
	m := newModule()
	return map[string]Caller{
		"http":  startServer(t, m, WithHeader("X-Api-Key", "k1")),
		"local": NewLocal(m),
	}
}

func TestCall_Result(t *testing.T) {
	for name, c := range callers(t) {
		t.Run(name, func(t *testing.T) {
			sum, err := Call[int](context.Background(), c, "add", 2, 3)
			require.NoError(t, err)
			assert.Equal(t, 5, sum)

			it, err := Call[*item](context.Background(), c, "item", 7)
			require.NoError(t, err)
			assert.Equal(t, &item{ID: 7, Name: "widget"}, it)
		})
	}
}

func TestCall_NullResultIsZero(t *testing.T) {
	for name, c := range callers(t) {
		t.Run(name, func(t *testing.T) {
			it, err := Call[*item](context.Background(), c, "item", 0)
			require.NoError(t, err)
			assert.Nil(t, it)
		})
	}
}

func TestCall_RPCError(t *testing.T) {
	for name, c := range callers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := Call[*item](context.Background(), c, "item", -1)
			var rpcErr *RPCError
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, -32004, rpcErr.Code)
			assert.Equal(t, "no such item", rpcErr.Message)
			assert.EqualValues(t, -1, rpcErr.Data)

			_, err = Call[int](context.Background(), c, "missing")
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)

			_, err = Call[int](context.Background(), c, "add", "two", 3)
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
		})
	}
}

func TestStub(t *testing.T) {
	add := Stub[int]{Method: "add"}
	for name, c := range callers(t) {
		t.Run(name, func(t *testing.T) {
			n, err := add.Request(context.Background(), c, 40, 2)
			require.NoError(t, err)
			assert.Equal(t, 42, n)
			assert.Equal(t, 3, add.RequestUnchecked(context.Background(), c, 1, 2))
			assert.Panics(t, func() { add.RequestUnchecked(context.Background(), c, 1) })
		})
	}
}

func TestHTTPClient_Headers(t *testing.T) {
	c := callers(t)["http"]
	got, err := Call[string](context.Background(), c, "header", "X-Api-Key")
	require.NoError(t, err)
	assert.Equal(t, "k1", got)
}

func TestUnreachable_CheckedReturnsError(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1/rpc", WithRetries(0, 0))

	_, err := Call[int](context.Background(), c, "add", 1, 2)
	require.Error(t, err)
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "add", tErr.Method)
}

func TestUnreachable_UncheckedPanics(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1/rpc", WithRetries(0, 0))

	assert.Panics(t, func() {
		MustCall[int](context.Background(), c, "add", 1, 2)
	})
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewHTTPClient("http://127.0.0.1:1/rpc", WithRetries(2, time.Millisecond), WithLogger(zap.New(core)))

	_, err := Call[int](context.Background(), c, "add", 1, 2)
	require.Error(t, err)
	assert.Equal(t, 2, logs.FilterMessage("client: retrying call").Len())
}

func TestHTTPClient_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := Call[int](context.Background(), NewHTTPClient(ts.URL), "add", 1, 2)
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Error(), "403")
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1/rpc", WithRetries(5, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call[int](ctx, c, "add", 1, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCall_EncodeFailure(t *testing.T) {
	_, err := Call[int](context.Background(), NewLocal(newModule()), "add", make(chan int), 1)
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{io.ErrUnexpectedEOF, true},
		{syscall.ECONNREFUSED, true},
		{errors.New("read: connection reset by peer"), true},
		{context.Canceled, false},
		{errors.New("status 500"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryable(tt.err), "%v", tt.err)
	}
}
