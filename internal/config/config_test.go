package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTmp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "gateway.toml")
	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return fp
}

func TestLoad_Minimal(t *testing.T) {
	toml := `
[server]
host = "127.0.0.1"
port = 9090

[[routes]]
path = "/api/*"
upstream = "http://upstream:8080"
methods = ["get", "post"]
`
	fp := writeTmp(t, toml)
	c, err := Load(fp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := c.ListenAddr(), "127.0.0.1:9090"; got != want {
		t.Fatalf("listen addr: got %q want %q", got, want)
	}
	if len(c.Routes) != 1 {
		t.Fatalf("routes len: got %d want 1", len(c.Routes))
	}
	r := c.Routes[0]
	if r.Name != "route-0" {
		t.Fatalf("auto name: got %q want route-0", r.Name)
	}
	if len(r.Methods) != 2 || r.Methods[0] != "GET" || r.Methods[1] != "POST" {
		t.Fatalf("methods not uppercased/coalesced: %+v", r.Methods)
	}
	if r.Timeout() != c.Server.Timeout() {
		t.Fatalf("route timeout should fall back to listener default")
	}
}

func TestLoad_RouteTimeoutOverride(t *testing.T) {
	toml := `
[server]
port = 3000
timeout_ms = 30000

[[routes]]
path = "/slow"
upstream = "http://u:80"
timeout_ms = 100
`
	fp := writeTmp(t, toml)
	c, err := Load(fp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Routes[0].Timeout().Milliseconds() != 100 {
		t.Fatalf("route timeout override: got %v want 100ms", c.Routes[0].Timeout())
	}
}

func TestLoad_InvalidPathMissingSlash(t *testing.T) {
	toml := `
[[routes]]
path = "api"
upstream = "http://u:80"
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error for path missing leading slash")
	}
}

func TestLoad_InvalidUpstreamScheme(t *testing.T) {
	toml := `
[[routes]]
path = "/a"
upstream = "ftp://u:80"
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error for non-http(s) upstream scheme")
	}
}

func TestLoad_InvalidMethod(t *testing.T) {
	toml := `
[[routes]]
path = "/a"
upstream = "http://u:80"
methods = ["FETCH"]
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error for unrecognized method")
	}
}

func TestLoad_DoubleWildcardRejected(t *testing.T) {
	toml := `
[[routes]]
path = "/a/**"
upstream = "http://u:80"
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error for '**' in path pattern")
	}
}

func TestLoad_TLSPortMustDiffer(t *testing.T) {
	toml := `
[server]
port = 3000

[server.tls]
enabled = true
port = 3000
cert_file = "x"
key_file = "y"

[[routes]]
path = "/a"
upstream = "http://u:80"
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error when tls.port == server.port")
	}
}

func TestLoad_RejectsUnparsableCertKeyPair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certPath, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, []byte("not a key"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}

	toml := `
[server]
port = 3000

[server.tls]
enabled = true
port = 8443
cert_file = "` + certPath + `"
key_file = "` + keyPath + `"

[[routes]]
path = "/a"
upstream = "http://u:80"
`
	fp := writeTmp(t, toml)
	if _, err := Load(fp); err == nil {
		t.Fatalf("want error when cert/key files exist but don't parse")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := &Config{
		Server: Server{Host: "h", Port: 1, TimeoutMs: 1000},
		Routes: []Route{
			{Path: "bad", Upstream: "not-a-url"},
			{Path: "/ok", Upstream: "http://u:80", Methods: []string{"NOPE"}},
		},
	}
	err := Validate(c)
	if err == nil {
		t.Fatalf("want validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("want *ValidationError, got %T", err)
	}
	if len(ve.Errors) < 3 {
		t.Fatalf("want all three violations collected, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if err := Validate(c); err != nil {
		t.Fatalf("Default() config must validate: %v", err)
	}
}
