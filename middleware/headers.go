package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/openspec/endpoint"
)

// APIHeadersProcessor sets response headers suited to a JSON API and
// answers CORS preflight requests for browser JSON-RPC clients.
//
// Defaults from NewAPIHeadersProcessor:
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//   - No CORS
type APIHeadersProcessor struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	// 0 disables the header.
	HSTSMaxAge int
	// Static headers set on every response. Empty values are skipped.
	Static map[string]string
	// CORS enables cross-origin access. Nil disables CORS headers.
	CORS *CORSConfig
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. "*" allows any
	// origin unless AllowCredentials is set.
	AllowedOrigins []string
	// AllowedMethods defaults to POST, OPTIONS.
	AllowedMethods []string
	// AllowedHeaders defaults to Content-Type, X-Request-ID.
	AllowedHeaders []string
	// ExposedHeaders defaults to X-Request-ID.
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is how long, in seconds, preflight results may be cached.
	MaxAge int
}

// APIHeadersOption configures an APIHeadersProcessor.
type APIHeadersOption func(*APIHeadersProcessor)

func NewAPIHeadersProcessor(opts ...APIHeadersOption) *APIHeadersProcessor {
	p := &APIHeadersProcessor{
		HSTSMaxAge: 31536000, // 1 year
		Static: map[string]string{
			"Referrer-Policy":              "no-referrer",
			"X-Content-Type-Options":       "nosniff",
			"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTSMaxAge sets the HSTS max-age; 0 disables HSTS.
func WithHSTSMaxAge(seconds int) APIHeadersOption {
	return func(p *APIHeadersProcessor) {
		p.HSTSMaxAge = seconds
	}
}

// WithHeader sets, or with an empty value removes, a static header.
func WithHeader(key, value string) APIHeadersOption {
	return func(p *APIHeadersProcessor) {
		if value == "" {
			delete(p.Static, key)
			return
		}
		p.Static[key] = value
	}
}

// WithCORS enables CORS. Unset list fields get JSON-RPC friendly defaults.
// Cross-origin callers also need a Cross-Origin-Resource-Policy other than
// same-origin, so the header is relaxed to cross-origin.
func WithCORS(cfg CORSConfig) APIHeadersOption {
	return func(p *APIHeadersProcessor) {
		if len(cfg.AllowedMethods) == 0 {
			cfg.AllowedMethods = []string{http.MethodPost, http.MethodOptions}
		}
		if len(cfg.AllowedHeaders) == 0 {
			cfg.AllowedHeaders = []string{"Content-Type", RequestIDHeader}
		}
		if len(cfg.ExposedHeaders) == 0 {
			cfg.ExposedHeaders = []string{RequestIDHeader}
		}
		if cfg.MaxAge == 0 {
			cfg.MaxAge = 3600
		}
		p.CORS = &cfg
		p.Static["Cross-Origin-Resource-Policy"] = "cross-origin"
	}
}

// Process implements endpoint.Processor.
func (p *APIHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.HSTSMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(p.HSTSMaxAge)+"; includeSubDomains")
	}
	for k, v := range p.Static {
		if v != "" {
			h.Set(k, v)
		}
	}

	if p.CORS != nil && r.Header.Get("Origin") != "" {
		p.CORS.apply(h, r)
		// A preflight is an OPTIONS request carrying
		// Access-Control-Request-Method; answer it without running the
		// endpoint.
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}
	return next(w, r)
}

func (c *CORSConfig) apply(h http.Header, r *http.Request) {
	origin := r.Header.Get("Origin")
	h.Add("Vary", "Origin")

	switch {
	case slices.Contains(c.AllowedOrigins, origin):
		h.Set("Access-Control-Allow-Origin", origin)
	case slices.Contains(c.AllowedOrigins, "*") && !c.AllowCredentials:
		// The wildcard is never combined with credentials.
		h.Set("Access-Control-Allow-Origin", "*")
	default:
		return
	}

	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(c.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
	}
	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
		if c.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*APIHeadersProcessor)(nil)
