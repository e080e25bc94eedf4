package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mnehpets/openspec/spec"
)

// Param declares one positional argument of a method.
type Param struct {
	Name        string
	Type        reflect.Type
	Summary     string
	Description string
	Deprecated  bool
}

// Arg declares a parameter of Go type T.
func Arg[T any](name string) Param {
	return Param{Name: name, Type: reflect.TypeFor[T]()}
}

// Doc returns a copy of p with its description set from doc lines.
func (p Param) Doc(lines ...string) Param {
	p.Description = spec.JoinDoc(lines...)
	return p
}

// Summarize returns a copy of p with a one-line summary.
func (p Param) Summarize(s string) Param {
	p.Summary = s
	return p
}

// Deprecate returns a copy of p marked deprecated.
func (p Param) Deprecate() Param {
	p.Deprecated = true
	return p
}

func (p Param) nullable() bool {
	return nullable(p.Type)
}

// Args is a decoded argument tuple. Element i holds a value of the i'th
// declared Param's type.
type Args []any

// At returns argument i as T. Absent or nil arguments yield the zero value.
// It panics if the argument holds a different type, which only happens
// when a handler disagrees with its own declaration.
func At[T any](args Args, i int) T {
	var zero T
	if i < 0 || i >= len(args) || args[i] == nil {
		return zero
	}
	return args[i].(T)
}

var errNotJSON = errors.New("params are not valid JSON")

// DecodeParams decodes raw call params into a tuple matching params.
//
// With no declared params, anything empty is accepted; other input is an
// error in strict mode and ignored otherwise. A single param is decoded
// from the value itself, from a one-element list, or from an object keyed
// by the param name. Two or more params are decoded from a positional
// list or from an object keyed by name.
//
// A nil raw means the request carried no params member at all.
func DecodeParams(raw json.RawMessage, params []Param, strict bool) (Args, error) {
	absent := len(bytes.TrimSpace(raw)) == 0
	if !absent && !gjson.ValidBytes(raw) {
		return nil, &ParamError{Kind: ParamTypeMismatch, Position: -1, Cause: errNotJSON}
	}
	root := gjson.ParseBytes(raw)

	switch len(params) {
	case 0:
		return decodeNone(root, absent, strict)
	case 1:
		return decodeOne(root, absent, params[0], strict)
	}
	return decodeMany(root, absent, params, strict)
}

// EncodeParams builds the positional params list for a call.
func EncodeParams(args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func decodeNone(root gjson.Result, absent, strict bool) (Args, error) {
	if absent || root.Type == gjson.Null {
		return Args{}, nil
	}
	empty := false
	if root.IsArray() || root.IsObject() {
		empty = true
		root.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
	}
	if !empty && strict {
		return nil, &ParamError{Kind: ParamExtra, Position: 0}
	}
	return Args{}, nil
}

func decodeOne(root gjson.Result, absent bool, p Param, strict bool) (Args, error) {
	var (
		v   any
		err error
	)
	switch {
	case absent || root.Type == gjson.Null:
		v, err = missing(p, 0)
	case root.IsArray():
		v, err = decodeOneFromList(root, p, strict)
	case root.IsObject():
		v, err = decodeOneFromObject(root, p, strict)
	default:
		v, err = decodeValue(root, p, 0)
	}
	if err != nil {
		return nil, err
	}
	return Args{v}, nil
}

func decodeOneFromList(root gjson.Result, p Param, strict bool) (any, error) {
	elems := root.Array()
	listLike := isListLike(p.Type)
	switch {
	case len(elems) == 1:
		v, err := decodeValue(elems[0], p, 0)
		if err != nil && listLike {
			if whole, werr := decodeValue(root, p, 0); werr == nil {
				return whole, nil
			}
		}
		return v, err
	case listLike:
		return decodeValue(root, p, 0)
	case len(elems) == 0:
		return missing(p, 0)
	case strict:
		return nil, &ParamError{Kind: ParamExtra, Position: 1}
	}
	return decodeValue(elems[0], p, 0)
}

func decodeOneFromObject(root gjson.Result, p Param, strict bool) (any, error) {
	members := objectMembers(root)
	byName, ok := members[p.Name]

	if isObjectLike(p.Type) && (!ok || hasJSONField(p.Type, p.Name)) {
		return decodeValue(root, p, 0)
	}
	if ok && isMap(p.Type) {
		if v, err := decodeValue(root, p, 0); err == nil {
			return v, nil
		}
	}
	if !ok {
		if isInterface(p.Type) {
			return decodeValue(root, p, 0)
		}
		return missing(p, 0)
	}
	if strict && len(members) > 1 {
		if extra := firstUnknown(root, []Param{p}); extra != "" {
			return nil, &ParamError{Kind: ParamExtra, Position: -1, Name: extra}
		}
	}
	return decodeValue(byName, p, 0)
}

func decodeMany(root gjson.Result, absent bool, params []Param, strict bool) (Args, error) {
	args := make(Args, len(params))

	switch {
	case absent || root.Type == gjson.Null:
		for i, p := range params {
			v, err := missing(p, i)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

	case root.IsArray():
		elems := root.Array()
		if strict && len(elems) > len(params) {
			return nil, &ParamError{Kind: ParamExtra, Position: len(params)}
		}
		for i, p := range params {
			var (
				v   any
				err error
			)
			if i < len(elems) {
				v, err = decodeValue(elems[i], p, i)
			} else {
				v, err = missing(p, i)
			}
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

	case root.IsObject():
		if strict {
			if extra := firstUnknown(root, params); extra != "" {
				return nil, &ParamError{Kind: ParamExtra, Position: -1, Name: extra}
			}
		}
		members := objectMembers(root)
		for i, p := range params {
			var (
				v   any
				err error
			)
			if m, ok := members[p.Name]; ok {
				v, err = decodeValue(m, p, i)
			} else {
				v, err = missing(p, i)
			}
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

	default:
		return nil, &ParamError{
			Kind:     ParamTypeMismatch,
			Position: -1,
			Cause:    errors.New("params must be a list or an object"),
		}
	}
	return args, nil
}

func decodeValue(v gjson.Result, p Param, pos int) (any, error) {
	if v.Type == gjson.Null {
		if p.nullable() {
			return reflect.Zero(p.Type).Interface(), nil
		}
		return nil, &ParamError{Kind: ParamTypeMismatch, Position: pos, Name: p.Name, Cause: errors.New("null is not allowed")}
	}
	ptr := reflect.New(p.Type)
	if err := json.Unmarshal([]byte(v.Raw), ptr.Interface()); err != nil {
		return nil, &ParamError{Kind: ParamTypeMismatch, Position: pos, Name: p.Name, Cause: err}
	}
	return ptr.Elem().Interface(), nil
}

func missing(p Param, pos int) (any, error) {
	if p.nullable() {
		return reflect.Zero(p.Type).Interface(), nil
	}
	return nil, &ParamError{Kind: ParamMissing, Position: pos, Name: p.Name}
}

func objectMembers(root gjson.Result) map[string]gjson.Result {
	members := make(map[string]gjson.Result)
	root.ForEach(func(k, v gjson.Result) bool {
		members[k.String()] = v
		return true
	})
	return members
}

func firstUnknown(root gjson.Result, params []Param) string {
	var extra string
	root.ForEach(func(k, _ gjson.Result) bool {
		for _, p := range params {
			if p.Name == k.String() {
				return true
			}
		}
		extra = k.String()
		return false
	})
	return extra
}

// nullable reports whether a param of type t may be null or absent. It
// agrees with the schema generator, which only adds null to pointers.
func nullable(t reflect.Type) bool {
	k := t.Kind()
	return k == reflect.Pointer || k == reflect.Interface
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func isObjectLike(t reflect.Type) bool {
	k := deref(t).Kind()
	return k == reflect.Struct || k == reflect.Map
}

func isListLike(t reflect.Type) bool {
	k := deref(t).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isMap(t reflect.Type) bool {
	return deref(t).Kind() == reflect.Map
}

func isInterface(t reflect.Type) bool {
	return t.Kind() == reflect.Interface
}

// hasJSONField reports whether struct type t decodes an object member
// called name. Matching is case-insensitive like encoding/json.
func hasJSONField(t reflect.Type, name string) bool {
	t = deref(t)
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = f.Name
		}
		if strings.EqualFold(tag, name) {
			return true
		}
	}
	return false
}
