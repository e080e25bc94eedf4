package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"
)

const (
	defaultRetries = 2
	retryBaseWait  = 100 * time.Millisecond
)

// HTTPClient calls a JSON-RPC 2.0 endpoint over HTTP POST.
type HTTPClient struct {
	url     string
	http    *http.Client
	log     *zap.Logger
	retries int
	wait    time.Duration
	headers http.Header
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the default client, which has a 30 second
// timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *HTTPClient) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries sets how many times a call is retried after a transient
// connection failure, waiting base, 2*base, 4*base... between attempts.
func WithRetries(n int, base time.Duration) Option {
	return func(c *HTTPClient) {
		c.retries = max(0, n)
		c.wait = base
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *HTTPClient) {
		c.headers.Add(key, value)
	}
}

func NewHTTPClient(url string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		url:     url,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zap.NewNop(),
		retries: defaultRetries,
		wait:    retryBaseWait,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Call(ctx context.Context, method string, params json.RawMessage, reply any) error {
	if params == nil {
		params = json.RawMessage("[]")
	}
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("encode request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.wait * time.Duration(1<<(attempt-1))
			c.log.Warn("client: retrying call",
				zap.String("method", method),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return &TransportError{Method: method, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		err := c.do(ctx, method, body, reply)
		if err == nil {
			return nil
		}
		var tErr *TransportError
		if !errors.As(err, &tErr) || !isRetryable(tErr.Err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *HTTPClient) do(ctx context.Context, method string, body []byte, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	for k, v := range c.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Method: method, Err: fmt.Errorf("status %s", resp.Status)}
	}

	err = json2.DecodeClientResponse(resp.Body, reply)
	var rpcErr *json2.Error
	switch {
	case err == nil, errors.Is(err, json2.ErrNullResult):
		return nil
	case errors.As(err, &rpcErr):
		return &RPCError{Code: int(rpcErr.Code), Message: rpcErr.Message, Data: rpcErr.Data}
	}
	return &TransportError{Method: method, Err: fmt.Errorf("decode response: %w", err)}
}

// cleanlyCloseBody drains the body so the connection can be reused.
func cleanlyCloseBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// isRetryable reports transient connection failures.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"EOF", "connection reset", "connection refused", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var _ Caller = (*HTTPClient)(nil)
