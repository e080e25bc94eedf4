// Package jsonrpc registers typed methods on a module, dispatches JSON-RPC
// 2.0 calls to them and describes them as an OpenRPC document.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// A Module owns one state value shared by its methods. Declare each method
// with its params and result, then serve the module:
//
//	type State struct{ Users *UserStore }
//
//	m := jsonrpc.New(spec.NewInfo("users", "1.0.0"), State{Users: store})
//	m.MustRegister(
//	    jsonrpc.NewMethod[State]("add").
//	        Doc("Adds two numbers.").
//	        Param(jsonrpc.Arg[int]("a"), jsonrpc.Arg[int]("b")).
//	        Returns(reflect.TypeFor[int]()).
//	        Sync(jsonrpc.BindNone, func(ctx context.Context, args jsonrpc.Args, _ *State, _ jsonrpc.Extensions) (any, error) {
//	            return jsonrpc.At[int](args, 0) + jsonrpc.At[int](args, 1), nil
//	        }),
//	)
//	http.Handle("/rpc", jsonrpc.NewServer(m))
//
// # Params
//
// Params may be positional or named. A method with one param also accepts
// the bare value. Pointer, slice, map and interface params accept null and
// may be omitted; every other param is required. Unexpected params are an
// error unless WithStrictParams(false) is given.
//
// # Handlers and State
//
// Sync handlers run on the dispatching goroutine. Async handlers run as
// their own task, detached from the caller's cancellation, and may be
// capped with WithMaxConcurrency.
//
// A handler's Binding selects how it sees the state:
//   - BindNone: no state
//   - BindBorrowed: the module's state, sync handlers only
//   - BindShared: a Handle to the module's state, async handlers only
//   - BindOwned: a private clone, which needs WithCloner or a Clone method
//
// Shared state must do its own locking.
//
// # Error Handling
//
// Return a JSONRPCError to choose the code sent to the caller:
//
//	return nil, jsonrpc.NewError(-32000, "user not found")
//
// Other errors become CodeInternalError. Standard error codes are defined
// as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
//
// Handler panics are recovered and reported as CodeInternalError.
//
// # Spec
//
// Module.Spec returns the OpenRPC document of every registered method in
// registration order, and Module.Export writes it as JSON, YAML or CBOR.
//
// # Processor Integration
//
// Processors run before every HTTP request for cross-cutting concerns:
//
//	jsonrpc.NewServer(m, jsonrpc.WithProcessors(requestID, accessLog))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
package jsonrpc
