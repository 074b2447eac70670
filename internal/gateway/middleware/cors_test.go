package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"composer/internal/gateway/middleware"
)

func TestCORSPreflightTerminates(t *testing.T) {
	handler := middleware.CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the next handler")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/convos", nil)
	req.Header.Set("Origin", "http://app.example.com")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow-all origin, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected Access-Control-Allow-Methods on preflight")
	}
}

func TestCORSHeadersOnNormalRequest(t *testing.T) {
	called := false
	handler := middleware.CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/convos", nil))

	if !called {
		t.Fatal("expected handler to be called for non-preflight request")
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "Authorization" {
		t.Errorf("expected Authorization exposed, got %q", got)
	}
}
