package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ErrUnsupportedType is returned for Go types that have no JSON Schema
// representation.
var ErrUnsupportedType = errors.New("spec: unsupported type")

// SchemaGenerator produces a JSON Schema for a Go type. A nil type stands
// for "no value" and yields NullSchema.
type SchemaGenerator interface {
	Schema(t reflect.Type) (Schema, error)
}

// SchemaGeneratorFunc adapts a function to a SchemaGenerator.
type SchemaGeneratorFunc func(t reflect.Type) (Schema, error)

func (f SchemaGeneratorFunc) Schema(t reflect.Type) (Schema, error) {
	return f(t)
}

// ReflectGenerator derives schemas by reflection using the json struct tags
// of the type. Pointer types are nullable.
type ReflectGenerator struct {
	inline   *jsonschema.Reflector
	expanded *jsonschema.Reflector
}

// NewReflectGenerator returns a generator that emits self-contained schemas
// without $id or $schema keywords.
func NewReflectGenerator() *ReflectGenerator {
	return &ReflectGenerator{
		inline:   &jsonschema.Reflector{Anonymous: true},
		expanded: &jsonschema.Reflector{Anonymous: true, ExpandedStruct: true},
	}
}

func (g *ReflectGenerator) Schema(t reflect.Type) (Schema, error) {
	if t == nil {
		return NullSchema, nil
	}
	if err := CheckType(t); err != nil {
		return nil, err
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	var raw []byte
	switch {
	case base.Kind() == reflect.Interface:
		raw = AnySchema
	default:
		b, err := g.reflectType(base)
		if err != nil {
			return nil, fmt.Errorf("spec: schema for %s: %w", t, err)
		}
		raw = b
	}

	s, err := stripMeta(raw)
	if err != nil {
		return nil, fmt.Errorf("spec: schema for %s: %w", t, err)
	}
	if t.Kind() == reflect.Pointer {
		return s.Nullable()
	}
	return s, nil
}

// reflectType inlines named structs at the top level unless the type refers
// to itself, in which case the definition has to stay in $defs.
func (g *ReflectGenerator) reflectType(t reflect.Type) ([]byte, error) {
	if t.Kind() == reflect.Struct && t.Name() != "" {
		b, err := json.Marshal(g.expanded.ReflectFromType(t))
		if err != nil {
			return nil, err
		}
		if !bytes.Contains(b, []byte(`"#/$defs/`+t.Name()+`"`)) {
			return b, nil
		}
	}
	return json.Marshal(g.inline.ReflectFromType(t))
}

// stripMeta drops document-level keywords that make no sense once the
// schema is embedded in a content descriptor.
func stripMeta(raw []byte) (Schema, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Schema(raw), nil
	}
	delete(obj, "$schema")
	delete(obj, "$id")
	if len(obj) == 0 {
		return AnySchema, nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return Schema(b), nil
}

// CheckType reports ErrUnsupportedType if t, or any type reachable through
// its elements and exported fields, cannot be expressed in JSON.
func CheckType(t reflect.Type) error {
	return checkType(t, map[reflect.Type]bool{})
}

func checkType(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Invalid:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return checkType(t.Elem(), seen)
	case reflect.Map:
		switch t.Key().Kind() {
		case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			if !t.Key().Implements(textMarshalerType) {
				return fmt.Errorf("%w: map key %s", ErrUnsupportedType, t.Key())
			}
		}
		return checkType(t.Elem(), seen)
	case reflect.Struct:
		if t.Implements(jsonMarshalerType) || reflect.PointerTo(t).Implements(jsonMarshalerType) {
			return nil
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if err := checkType(f.Type, seen); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[interface{ MarshalText() ([]byte, error) }]()
)
