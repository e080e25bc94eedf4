package jsonrpc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"

	"github.com/mnehpets/openspec/spec"
)

// Descriptor is everything a Module needs to register one method: its
// name, declared params, spec and handler.
type Descriptor[C any] interface {
	Name() string
	Params() []Param
	Spec(gen spec.SchemaGenerator) (spec.Method, error)
	Handler() Handler[C]
}

// Method builds a Descriptor.
//
//	jsonrpc.NewMethod[State]("get_user").
//		Doc("Looks up a user by id.").
//		Param(jsonrpc.Arg[int64]("id")).
//		Returns(reflect.TypeFor[*User]()).
//		Sync(jsonrpc.BindBorrowed, getUser)
type Method[C any] struct {
	name        string
	summary     string
	doc         []string
	deprecated  bool
	params      []Param
	result      reflect.Type
	resultDoc   string
	tags        []spec.Tag
	errors      []spec.Error
	examples    []spec.ExamplePairing
	externalDoc *spec.ExternalDocs
	handler     Handler[C]
}

func NewMethod[C any](name string) *Method[C] {
	return &Method[C]{name: name}
}

// Doc appends documentation lines. Leading whitespace on each line is
// dropped when the description is built.
func (m *Method[C]) Doc(lines ...string) *Method[C] {
	m.doc = append(m.doc, lines...)
	return m
}

func (m *Method[C]) Summary(s string) *Method[C] {
	m.summary = s
	return m
}

// Deprecate marks the method, and its result descriptor, deprecated.
func (m *Method[C]) Deprecate() *Method[C] {
	m.deprecated = true
	return m
}

// Param appends parameters in call order.
func (m *Method[C]) Param(p ...Param) *Method[C] {
	m.params = append(m.params, p...)
	return m
}

// Returns declares the result type. Without it the result is documented
// as null.
func (m *Method[C]) Returns(t reflect.Type, doc ...string) *Method[C] {
	m.result = t
	m.resultDoc = spec.JoinDoc(doc...)
	return m
}

func (m *Method[C]) Tag(names ...string) *Method[C] {
	for _, n := range names {
		m.tags = append(m.tags, spec.Tag{Name: n})
	}
	return m
}

// Error documents an application error code the method may return.
func (m *Method[C]) Error(code int, message string) *Method[C] {
	m.errors = append(m.errors, spec.Error{Code: code, Message: message})
	return m
}

func (m *Method[C]) Example(e spec.ExamplePairing) *Method[C] {
	m.examples = append(m.examples, e)
	return m
}

func (m *Method[C]) ExternalDocs(url, description string) *Method[C] {
	m.externalDoc = &spec.ExternalDocs{URL: url, Description: description}
	return m
}

// Sync sets a handler run on the dispatching goroutine.
func (m *Method[C]) Sync(b Binding, fn SyncFunc[C]) *Method[C] {
	m.handler = SyncHandler(b, fn)
	return m
}

// Async sets a handler run as its own task.
func (m *Method[C]) Async(b Binding, fn AsyncFunc[C]) *Method[C] {
	m.handler = AsyncHandler(b, fn)
	return m
}

func (m *Method[C]) Name() string {
	return m.name
}

func (m *Method[C]) Params() []Param {
	return append([]Param(nil), m.params...)
}

func (m *Method[C]) Handler() Handler[C] {
	return m.handler
}

// Spec builds the method's spec entry. Every param is required; whether a
// param accepts null is expressed by its schema only.
func (m *Method[C]) Spec(gen spec.SchemaGenerator) (spec.Method, error) {
	out := spec.Method{
		Name:         m.name,
		Summary:      m.summary,
		Description:  spec.JoinDoc(m.doc...),
		Params:       make([]spec.ContentDescriptor, 0, len(m.params)),
		Deprecated:   m.deprecated,
		Tags:         m.tags,
		Errors:       m.errors,
		Examples:     m.examples,
		ExternalDocs: m.externalDoc,
	}

	var errs error
	for _, p := range m.params {
		s, err := gen.Schema(p.Type)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("param %q: %w", p.Name, err))
			continue
		}
		out.Params = append(out.Params, spec.ContentDescriptor{
			Name:        p.Name,
			Summary:     p.Summary,
			Description: p.Description,
			Required:    true,
			Schema:      s,
			Deprecated:  p.Deprecated,
		})
	}

	rs, err := gen.Schema(m.result)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("result: %w", err))
	}
	if errs != nil {
		return spec.Method{}, errs
	}
	out.Result = &spec.ContentDescriptor{
		Name:        spec.ResultName(m.name),
		Description: m.resultDoc,
		Required:    true,
		Schema:      rs,
		Deprecated:  m.deprecated,
	}
	return out, nil
}
