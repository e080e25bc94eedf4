package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mnehpets/openspec/endpoint"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultBatchWorkers = 16
)

// Server exposes a Dispatcher over HTTP and WebSocket.
//
// HTTP follows JSON-RPC over HTTP: POST only, application/json bodies,
// batches, and 204 No Content when every request was a notification.
type Server struct {
	d          Dispatcher
	log        *zap.Logger
	maxBody    int64
	batchMax   int64
	processors []endpoint.Processor
	upgrader   websocket.Upgrader
	handler    http.Handler
}

type ServerOption func(*Server)

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxBodyBytes limits the size of an HTTP request body or WebSocket
// message.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithBatchConcurrency caps how many members of one batch are handled at
// the same time. The default is 16.
func WithBatchConcurrency(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.batchMax = int64(n)
		}
	}
}

// WithProcessors runs processors before every HTTP request. Processor
// errors become plain HTTP errors, not JSON-RPC errors.
func WithProcessors(p ...endpoint.Processor) ServerOption {
	return func(s *Server) {
		s.processors = append(s.processors, p...)
	}
}

// WithCheckOrigin sets the origin check for WebSocket upgrades. The default
// rejects cross-origin upgrades.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

func NewServer(d Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		d:        d,
		log:      zap.NewNop(),
		maxBody:  defaultMaxBodyBytes,
		batchMax: defaultBatchWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = endpoint.Handler(s.Endpoint, s.processors...)
	return s
}

// ServeHTTP implements http.Handler. Registration on the dispatcher ends
// with the first request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.d.Seal()
	s.handler.ServeHTTP(w, r)
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
// Pass to endpoint.Handler() to wrap it with a different processor chain.
func (s *Server) Endpoint(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}

	// Per JSON-RPC over HTTP, Content-Type must be application/json.
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	body, err := endpoint.ReadBody(w, r, s.maxBody)
	if err != nil {
		return nil, err
	}

	ext := Extensions{
		ExtTransport:  "http",
		ExtRemoteAddr: r.RemoteAddr,
		ExtHeaders:    r.Header.Clone(),
	}
	if id := endpoint.RequestID(r.Context()); id != "" {
		ext[ExtRequestID] = id
	}

	out := s.handleBody(r.Context(), body, ext)
	if out == nil {
		return &endpoint.NoContentRenderer{}, nil
	}
	return &endpoint.JSONRenderer{Value: out}, nil
}

// handleBody processes one JSON-RPC payload. It returns the value to send
// back, or nil when nothing is owed because every request was a
// notification.
func (s *Server) handleBody(ctx context.Context, body []byte, ext Extensions) any {
	body = bytes.TrimSpace(body)

	if len(body) == 0 || body[0] != '[' {
		resp, ok := s.handleOne(ctx, body, ext)
		if !ok {
			return nil
		}
		return resp
	}

	var reqs []json.RawMessage
	if err := json.Unmarshal(body, &reqs); err != nil {
		return errorReply(nil, NewParseError("parse error"))
	}
	if len(reqs) == 0 {
		return errorReply(nil, NewInvalidRequestError("invalid request"))
	}

	// Batch members run concurrently, at most batchMax at a time; replies
	// keep request order.
	replies := make([]*response, len(reqs))
	sem := semaphore.NewWeighted(s.batchMax)
	var wg sync.WaitGroup
	for i, raw := range reqs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// The caller is gone; members not yet started are dropped.
			s.log.Debug("jsonrpc: batch abandoned", zap.Int("started", i), zap.Int("size", len(reqs)))
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if resp, ok := s.handleOne(ctx, raw, ext); ok {
				replies[i] = resp
			}
		}()
	}
	wg.Wait()

	out := make([]*response, 0, len(replies))
	for _, r := range replies {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// handleOne processes a single request object. ok is false for
// notifications.
func (s *Server) handleOne(ctx context.Context, raw []byte, ext Extensions) (resp *response, ok bool) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		if !json.Valid(raw) {
			return errorReply(nil, NewParseError("parse error")), true
		}
		return errorReply(nil, NewInvalidRequestError("invalid request")), true
	}

	if !validID(req.ID) {
		return errorReply(nil, NewInvalidRequestError("invalid id")), true
	}
	if req.JSONRPC != "2.0" {
		return errorReply(req.ID, NewInvalidRequestError("invalid request")), true
	}
	if req.Method == "" {
		return errorReply(req.ID, NewInvalidRequestError("method required")), true
	}

	f := s.d.DispatchAsync(ctx, req.Method, req.Params, ext)

	// Notification: no id means no response expected.
	if req.ID == nil {
		if r, done := f.Poll(); done && r.Error != nil {
			s.log.Debug("jsonrpc: notification failed",
				zap.String("method", req.Method),
				zap.Int("code", r.Error.Code),
				zap.String("message", r.Error.Message))
		}
		return nil, false
	}

	r := f.Await(ctx)
	return &response{
		JSONRPC: "2.0",
		Result:  r.Result,
		Error:   r.Error,
		ID:      req.ID,
	}, true
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// response always carries an id, null when the request's id could not be
// determined.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func errorReply(id json.RawMessage, err *JSONRPCError) *response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &response{JSONRPC: "2.0", Error: err, ID: id}
}

// validID accepts absent, null, string and number ids.
func validID(id json.RawMessage) bool {
	if id == nil {
		return true
	}
	switch c := id[0]; {
	case c == '"', c == 'n', c == '-', c >= '0' && c <= '9':
		return true
	}
	return false
}
