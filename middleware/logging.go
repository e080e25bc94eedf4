package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mnehpets/openspec/endpoint"
)

// AccessLogProcessor writes one log entry per request after the rest of
// the chain has run.
type AccessLogProcessor struct {
	Logger *zap.Logger
}

func NewAccessLogProcessor(logger *zap.Logger) *AccessLogProcessor {
	return &AccessLogProcessor{Logger: logger}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if s.status == 0 {
		s.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(s.ResponseWriter).Hijack()
}

func (p *AccessLogProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r)

	// Errors are rendered by the handler after the chain returns.
	status := rec.status
	level := zapcore.InfoLevel
	if err != nil {
		status = http.StatusInternalServerError
		var ee *endpoint.EndpointError
		if errors.As(err, &ee) && ee.Status >= 100 {
			status = ee.Status
		}
		if status >= 500 {
			level = zapcore.ErrorLevel
		} else {
			level = zapcore.WarnLevel
		}
	}
	if status == 0 {
		status = http.StatusOK
	}

	if ce := p.Logger.Check(level, "request"); ce != nil {
		ce.Write(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("remote", ClientIP(r)),
			zap.String("request_id", endpoint.RequestID(r.Context())),
			zap.Error(err),
		)
	}
	return err
}

var _ endpoint.Processor = (*AccessLogProcessor)(nil)
