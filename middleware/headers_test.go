package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnehpets/openspec/endpoint"
)

func serve(p endpoint.Processor, r *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	h := endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
		called = true
		return &endpoint.StringRenderer{Body: "ok"}, nil
	}, p)
	w := httptest.NewRecorder()
	h(w, r)
	return w, called
}

func TestAPIHeadersProcessor_Defaults(t *testing.T) {
	w, called := serve(NewAPIHeadersProcessor(), httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if !called {
		t.Fatal("endpoint was not called")
	}
	want := map[string]string{
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"Referrer-Policy":              "no-referrer",
		"X-Content-Type-Options":       "nosniff",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s: got %q want %q", k, got, v)
		}
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("CORS header set without CORS config: %q", got)
	}
}

func TestAPIHeadersProcessor_Options(t *testing.T) {
	p := NewAPIHeadersProcessor(WithHSTSMaxAge(0), WithHeader("Referrer-Policy", ""), WithHeader("X-Frame-Options", "DENY"))
	w, _ := serve(p, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS: got %q want empty", got)
	}
	if got := w.Header().Get("Referrer-Policy"); got != "" {
		t.Errorf("Referrer-Policy: got %q want empty", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q want DENY", got)
	}
}

func TestAPIHeadersProcessor_CORSAllowedOrigin(t *testing.T) {
	p := NewAPIHeadersProcessor(WithCORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}}))
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Origin", "https://app.example")
	w, called := serve(p, r)
	if !called {
		t.Fatal("endpoint was not called")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin: got %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != RequestIDHeader {
		t.Errorf("Expose-Headers: got %q", got)
	}
	if got := w.Header().Get("Cross-Origin-Resource-Policy"); got != "cross-origin" {
		t.Errorf("CORP: got %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary: got %q", got)
	}
}

func TestAPIHeadersProcessor_CORSUnknownOrigin(t *testing.T) {
	p := NewAPIHeadersProcessor(WithCORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}}))
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Origin", "https://evil.example")
	w, called := serve(p, r)
	if !called {
		t.Fatal("endpoint was not called")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin: got %q want empty", got)
	}
}

func TestAPIHeadersProcessor_CORSWildcardWithCredentials(t *testing.T) {
	p := NewAPIHeadersProcessor(WithCORS(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true}))
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Origin", "https://app.example")
	w, _ := serve(p, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin: got %q want empty", got)
	}

	p = NewAPIHeadersProcessor(WithCORS(CORSConfig{AllowedOrigins: []string{"*"}}))
	w, _ = serve(p, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q want *", got)
	}
}

func TestAPIHeadersProcessor_Preflight(t *testing.T) {
	p := NewAPIHeadersProcessor(WithCORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}}))
	r := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	r.Header.Set("Origin", "https://app.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w, called := serve(p, r)
	if called {
		t.Fatal("endpoint should not run for a preflight")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("status: got %d want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods: got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Request-ID" {
		t.Errorf("Allow-Headers: got %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age: got %q", got)
	}
}
