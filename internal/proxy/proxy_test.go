package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferragate/gateway/internal/config"
	"github.com/ferragate/gateway/internal/routematch"
	"github.com/ferragate/gateway/internal/upstream"
)

func newHandler(t *testing.T, routes []config.Route) *Handler {
	t.Helper()
	table := routematch.New(routes)
	up := upstream.New(upstream.DefaultOptions())
	return New(table, up, nil)
}

func TestServeHTTP_ProxiesMatchedRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Forwarded-Proto"); got != "http" {
			t.Errorf("X-Forwarded-Proto = %q, want http", got)
		}
		if got := r.Header.Get("X-Static"); got != "yes" {
			t.Errorf("route header not merged, got %q", got)
		}
		w.Header().Set("X-From-Backend", "1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello from backend"))
	}))
	defer backend.Close()

	routes := []config.Route{{
		Name:     "api",
		Path:     "/api/*",
		Upstream: backend.URL,
		Headers:  map[string]string{"X-Static": "yes"},
	}}
	h := newHandler(t, routes)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-From-Backend") != "1" {
		t.Errorf("missing relayed response header")
	}
	if rec.Body.String() != "hello from backend" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID on success response")
	}
}

func TestServeHTTP_NoRouteIs404(t *testing.T) {
	h := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != KindNoRoute {
		t.Errorf("error kind = %q, want NoRoute", body.Error)
	}
}

func TestServeHTTP_MethodRejectionIs405WithAllow(t *testing.T) {
	routes := []config.Route{
		{Name: "r1", Path: "/a", Upstream: "http://upstream.invalid", Methods: []string{"GET"}},
		{Name: "r2", Path: "/a", Upstream: "http://upstream.invalid", Methods: []string{"POST"}},
	}
	h := newHandler(t, routes)

	req := httptest.NewRequest(http.MethodPut, "/a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
		t.Errorf("Allow = %q, want %q", allow, "GET, POST")
	}
}

func TestServeHTTP_UpstreamConnectFailureIs502(t *testing.T) {
	routes := []config.Route{{
		Name:     "dead",
		Path:     "/*",
		Upstream: "http://127.0.0.1:1",
	}}
	h := newHandler(t, routes)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != KindUpstreamConnect {
		t.Errorf("error kind = %q, want UpstreamConnect", body.Error)
	}
}

func TestServeHTTP_RouteTimeoutIs504(t *testing.T) {
	unblock := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-unblock
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()
	defer close(unblock)

	dir := t.TempDir()
	fp := filepath.Join(dir, "gateway.toml")
	toml := `
[server]
host = "127.0.0.1"
port = 9090
timeout_ms = 5000

[[routes]]
name = "slow"
path = "/*"
upstream = "` + backend.URL + `"
timeout_ms = 50
`
	if err := os.WriteFile(fp, []byte(toml), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := config.Load(fp)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if cfg.Routes[0].Timeout() != 50*time.Millisecond {
		t.Fatalf("route timeout = %v, want 50ms", cfg.Routes[0].Timeout())
	}

	table := routematch.New(cfg.Routes)
	up := upstream.New(upstream.DefaultOptions())
	h := New(table, up, nil)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != KindUpstreamTimeout {
		t.Errorf("error kind = %q, want UpstreamTimeout", body.Error)
	}
}

func TestServeHTTP_StripPathCapturesSuffixOnly(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	routes := []config.Route{{
		Name:      "strip",
		Path:      "/api/*",
		Upstream:  backend.URL + "/svc",
		StripPath: true,
	}}
	h := newHandler(t, routes)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/42", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotPath != "/svc/widgets/42" {
		t.Errorf("upstream saw path %q, want /svc/widgets/42", gotPath)
	}
}
