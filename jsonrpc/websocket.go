package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mnehpets/openspec/endpoint"
)

// ServeWebSocket upgrades the connection and serves JSON-RPC over it. Each
// text message is one request or batch; messages are handled concurrently
// and replies may arrive out of order.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	s.d.Seal()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.log.Debug("jsonrpc: websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.maxBody)

	ext := Extensions{
		ExtTransport:  "websocket",
		ExtRemoteAddr: r.RemoteAddr,
		ExtHeaders:    r.Header.Clone(),
	}
	if id := endpoint.RequestID(r.Context()); id != "" {
		ext[ExtRequestID] = id
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))

	wc := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		conn.Close()
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				s.log.Debug("jsonrpc: websocket read", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			_ = wc.write(errorReply(nil, NewInvalidRequestError("binary messages are not supported")))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			out := s.handleBody(ctx, msg, ext)
			if out == nil {
				return
			}
			if err := wc.write(out); err != nil {
				s.log.Debug("jsonrpc: websocket write", zap.Error(err))
			}
		}()
	}
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
