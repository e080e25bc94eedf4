package endpoint

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ReadBody reads the whole request body, refusing bodies over limit bytes
// with 413 Request Entity Too Large. limit <= 0 means no limit.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, Error(http.StatusRequestEntityTooLarge, "request body too large", err)
		}
		return nil, Error(http.StatusBadRequest, "failed to read request body", err)
	}
	return b, nil
}

type requestIDKey struct{}

// WithRequestID returns a context carrying a request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
