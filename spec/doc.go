// Package spec models an OpenRPC 1.3.2 document and builds one from the
// methods registered on a JSON-RPC module.
//
// The document is assembled by an Aggregator in registration order. Schemas
// for parameter and result types come from a SchemaGenerator; the default
// ReflectGenerator derives JSON Schema from Go types:
//
//	gen := spec.NewReflectGenerator()
//	s, err := gen.Schema(reflect.TypeFor[*string]())
//	// s == {"type":["string","null"]}
//
// Pointer types are treated as nullable. Channels, functions and complex
// numbers have no JSON representation and are rejected.
//
// A finished Document can be written as JSON, YAML or CBOR. The format is
// chosen from the file extension:
//
//	doc.WriteFile("openrpc.json")
//	doc.WriteFile("openrpc.yaml")
package spec
