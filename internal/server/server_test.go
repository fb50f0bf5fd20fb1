package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ferragate/gateway/internal/health"
)

func TestNew_RoutesHealthEndpoints(t *testing.T) {
	hs := health.NewState()
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(proxy, hs, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health/live status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything/else", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("fallthrough status = %d, want 418", rec.Code)
	}
}

func TestNew_AssignsRequestID(t *testing.T) {
	hs := health.NewState()
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := New(proxy, hs, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID header")
	}
}

func TestStatusCapture_TalliesWrittenBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	sc := &statusCapture{ResponseWriter: rec, status: http.StatusOK}

	if _, err := sc.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := sc.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if sc.bytes != 11 {
		t.Fatalf("bytes = %d, want 11", sc.bytes)
	}
}

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	hs := health.NewState()
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := New(proxy, hs, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 after recovered panic", rec.Code)
	}
}
