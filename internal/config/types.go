// Package config holds the gateway's typed configuration model and the
// validation invariants described in the data model.
package config

import "time"

// Config is the fully parsed, validated, immutable configuration for one
// gateway process. It is built once at startup and shared by reference
// across every request task; apart from the host/port/log-level overrides
// cmd/ferragate applies right after Load, nothing here is mutated.
type Config struct {
	Server  Server  `toml:"server"`
	Routes  []Route `toml:"routes"`
	Logging Logging `toml:"logging"`
}

// Server describes the listener(s) the gateway binds.
type Server struct {
	Host      string        `toml:"host"`
	Port      int           `toml:"port"`
	Workers   int           `toml:"workers"`
	TimeoutMs int           `toml:"timeout_ms"`
	TLS       *TLS          `toml:"tls"`
	timeout   time.Duration // derived, see deriveTimeouts
}

// Timeout is the listener-wide default request timeout.
func (s Server) Timeout() time.Duration { return s.timeout }

// TLS is the optional HTTPS listener block.
type TLS struct {
	Enabled      bool   `toml:"enabled"`
	Port         int    `toml:"port"`
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	RedirectHTTP bool   `toml:"redirect_http"`
}

// Route is one entry of the route table. Order is significant: the first
// route in declaration order whose predicates match wins; a more specific
// pattern declared later does not take precedence.
type Route struct {
	Name         string            `toml:"name"`
	Path         string            `toml:"path"`
	Upstream     string            `toml:"upstream"`
	Methods      []string          `toml:"methods"`
	Host         string            `toml:"host"`
	StripPath    bool              `toml:"strip_path"`
	PreserveHost bool              `toml:"preserve_host"`
	TimeoutMs    int               `toml:"timeout_ms"`
	Headers      map[string]string `toml:"headers"`

	timeout time.Duration // derived, see deriveTimeouts
}

// Timeout returns the route's effective timeout, falling back to the
// listener default when unset.
func (r Route) Timeout() time.Duration { return r.timeout }

// Logging configures the ambient log/slog setup (internal/gwlog).
type Logging struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
	File  bool   `toml:"file"`
	Dir   string `toml:"dir"`
}

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 3000
	DefaultHTTPSPort     = 443
	DefaultTimeoutMs     = 30_000
	DefaultLogLevel      = "info"
	DefaultConfigFile    = "gateway.toml"
	DefaultCertDir       = "certs"
	RedirectStatusCode   = 308
	ShutdownGracePeriod  = 30 * time.Second
	ConnectTimeout       = 5 * time.Second
	TLSHandshakeTimeout  = 10 * time.Second
	HealthCheckInterval  = 30 * time.Second
	HealthCheckTimeout   = 5 * time.Second
	UpstreamIdleTimeout  = 90 * time.Second
	UpstreamMaxIdlePerHost = 32
)
