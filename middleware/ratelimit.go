package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mnehpets/openspec/endpoint"
)

// RateLimitProcessor limits requests per client key with a token bucket.
// Rejected requests get 429 Too Many Requests.
type RateLimitProcessor struct {
	limit rate.Limit
	burst int
	// KeyFunc derives the bucket key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	Logger  *zap.Logger

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitProcessor allows perSecond requests per key with the given
// burst.
func NewRateLimitProcessor(perSecond float64, burst int) *RateLimitProcessor {
	return &RateLimitProcessor{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		KeyFunc:  ClientIP,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (p *RateLimitProcessor) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = p.now()
	return e.limiter
}

func (p *RateLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	key := p.KeyFunc(r)
	if !p.limiter(key).Allow() {
		if p.Logger != nil {
			p.Logger.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", r.URL.Path),
				zap.String("request_id", endpoint.RequestID(r.Context())))
		}
		if p.limit > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(1/float64(p.limit)))))
		}
		return endpoint.Error(http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
	return next(w, r)
}

// Prune drops buckets idle for longer than idle and returns how many were
// removed.
func (p *RateLimitProcessor) Prune(idle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-idle)
	n := 0
	for k, e := range p.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(p.limiters, k)
			n++
		}
	}
	return n
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var _ endpoint.Processor = (*RateLimitProcessor)(nil)
