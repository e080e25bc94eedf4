package spec

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Schema is a JSON Schema value embedded verbatim in the document.
type Schema json.RawMessage

// NullSchema describes a value that is always null. It is used for methods
// that declare no result.
var NullSchema = Schema(`{"type":"null"}`)

// AnySchema accepts every JSON value.
var AnySchema = Schema(`true`)

func (s Schema) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("true"), nil
	}
	return s, nil
}

func (s *Schema) UnmarshalJSON(b []byte) error {
	if s == nil {
		return errors.New("spec: UnmarshalJSON on nil Schema")
	}
	*s = append((*s)[:0], b...)
	return nil
}

// Get queries the schema with a gjson path such as "type" or
// "properties.name.type".
func (s Schema) Get(path string) gjson.Result {
	return gjson.GetBytes(s, path)
}

// Types returns the schema's "type" keyword as a list, whether it was
// written as a single string or an array.
func (s Schema) Types() []string {
	t := s.Get("type")
	if !t.Exists() {
		return nil
	}
	if !t.IsArray() {
		return []string{t.String()}
	}
	var out []string
	for _, v := range t.Array() {
		out = append(out, v.String())
	}
	return out
}

// AllowsNull reports whether null is a valid instance of the schema.
func (s Schema) AllowsNull() bool {
	if len(s) == 0 || gjson.ParseBytes(s).Type == gjson.True {
		return true
	}
	for _, t := range s.Types() {
		if t == "null" {
			return true
		}
	}
	for _, alt := range s.Get("anyOf").Array() {
		if Schema(alt.Raw).AllowsNull() {
			return true
		}
	}
	return false
}

// Nullable returns a copy of s that also admits null. A simple "type"
// keyword gains a "null" member; anything else is wrapped in anyOf.
func (s Schema) Nullable() (Schema, error) {
	if s.AllowsNull() {
		return s, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(s, &obj); err != nil {
		return nil, err
	}
	switch t := obj["type"].(type) {
	case string:
		obj["type"] = []any{t, "null"}
	case []any:
		obj["type"] = append(t, "null")
	default:
		obj = map[string]any{
			"anyOf": []any{json.RawMessage(s), map[string]any{"type": "null"}},
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return Schema(b), nil
}
