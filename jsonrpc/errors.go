package jsonrpc

import (
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// JSONRPCError is the error object carried in a response envelope.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return e.Message
}

func NewError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

func NewParseError(message string) *JSONRPCError {
	return NewError(CodeParseError, message)
}

func NewInvalidRequestError(message string) *JSONRPCError {
	return NewError(CodeInvalidRequest, message)
}

func NewMethodNotFoundError(message string) *JSONRPCError {
	return NewError(CodeMethodNotFound, message)
}

func NewInvalidParamsError(message string) *JSONRPCError {
	return NewError(CodeInvalidParams, message)
}

func NewInternalError(message string) *JSONRPCError {
	return NewError(CodeInternalError, message)
}

// mapError converts any error to a JSON-RPC error.
// JSONRPCError types preserve their code; ParamError becomes InvalidParams;
// other errors become InternalError.
func mapError(err error) *JSONRPCError {
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var pe *ParamError
	if errors.As(err, &pe) {
		return &JSONRPCError{
			Code:    CodeInvalidParams,
			Message: pe.Error(),
			Data:    pe.data(),
		}
	}
	return &JSONRPCError{
		Code:    CodeInternalError,
		Message: err.Error(),
	}
}

// ParamErrorKind classifies a parameter decoding failure.
type ParamErrorKind int

const (
	ParamMissing ParamErrorKind = iota + 1
	ParamTypeMismatch
	ParamExtra
)

func (k ParamErrorKind) String() string {
	switch k {
	case ParamMissing:
		return "missing"
	case ParamTypeMismatch:
		return "type_mismatch"
	case ParamExtra:
		return "extra_params"
	}
	return fmt.Sprintf("ParamErrorKind(%d)", int(k))
}

// ParamError reports why call params could not be decoded into the
// declared argument tuple. Position is zero-based; -1 when the failure is
// not tied to one argument.
type ParamError struct {
	Kind     ParamErrorKind
	Position int
	Name     string
	Cause    error
}

func (e *ParamError) Error() string {
	var msg string
	switch e.Kind {
	case ParamMissing:
		msg = "missing param"
	case ParamTypeMismatch:
		msg = "invalid param"
	case ParamExtra:
		msg = "unexpected params"
	default:
		msg = "invalid params"
	}
	if e.Name != "" {
		msg += ": " + e.Name
	} else if e.Position >= 0 {
		msg += fmt.Sprintf(": #%d", e.Position)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParamError) Unwrap() error {
	return e.Cause
}

func (e *ParamError) data() map[string]any {
	d := map[string]any{"kind": e.Kind.String()}
	if e.Position >= 0 {
		d["position"] = e.Position
	}
	if e.Name != "" {
		d["name"] = e.Name
	}
	return d
}

var (
	// ErrDuplicateMethod is wrapped by registration errors for names that
	// are already taken.
	ErrDuplicateMethod = errors.New("duplicate method")
	// ErrUnsupportedShape is wrapped by registration errors for handlers
	// whose binding, params or result cannot be served.
	ErrUnsupportedShape = errors.New("unsupported handler shape")
	// ErrSealed is wrapped by registration errors after the module started
	// serving.
	ErrSealed = errors.New("module sealed")
)

// RegistrationError reports a rejected method. The module is unchanged when
// one is returned.
type RegistrationError struct {
	Method string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("jsonrpc: register %q: %v", e.Method, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
