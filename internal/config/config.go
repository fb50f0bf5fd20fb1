package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ferragate/gateway/internal/tlsconfig"
)

// ValidationError aggregates every invariant violation found while
// validating a Config, rather than surfacing only the first one.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration invalid (%d error(s)): %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "TRACE": true, "CONNECT": true,
}

// Load reads path as TOML, applies defaults, validates, and returns a
// fully-derived Config. It is read once at startup; cmd/ferragate applies
// its host/port/log-level overrides to the returned value before the
// gateway starts, and it is not mutated after that.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	deriveTimeouts(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if strings.TrimSpace(c.Server.Host) == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.TimeoutMs == 0 {
		c.Server.TimeoutMs = DefaultTimeoutMs
	}
	if c.Server.TLS != nil && c.Server.TLS.Port == 0 {
		c.Server.TLS.Port = DefaultHTTPSPort
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = DefaultLogLevel
	}
	for i := range c.Routes {
		r := &c.Routes[i]
		r.Path = strings.TrimSpace(r.Path)
		if strings.TrimSpace(r.Name) == "" {
			r.Name = fmt.Sprintf("route-%d", i)
		}
		r.Host = strings.ToLower(strings.TrimSpace(r.Host))
		seen := make(map[string]bool, len(r.Methods))
		var methods []string
		for _, m := range r.Methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			methods = append(methods, m)
		}
		r.Methods = methods
	}
}

// Validate checks every invariant in the data model and returns a single
// *ValidationError listing all violations, or nil if the config is sound.
func Validate(c *Config) error {
	var errs []string

	if c.Server.TimeoutMs <= 0 {
		errs = append(errs, "server.timeout_ms must be strictly positive")
	}
	if c.Server.TLS != nil && c.Server.TLS.Enabled {
		t := c.Server.TLS
		if t.Port == c.Server.Port {
			errs = append(errs, "server.tls.port must differ from server.port")
		}

		certOK := true
		if strings.TrimSpace(t.CertFile) == "" {
			errs = append(errs, "server.tls.cert_file is required when tls is enabled")
			certOK = false
		} else if _, err := os.Stat(t.CertFile); err != nil {
			errs = append(errs, fmt.Sprintf("server.tls.cert_file not found: %s", t.CertFile))
			certOK = false
		}
		keyOK := true
		if strings.TrimSpace(t.KeyFile) == "" {
			errs = append(errs, "server.tls.key_file is required when tls is enabled")
			keyOK = false
		} else if _, err := os.Stat(t.KeyFile); err != nil {
			errs = append(errs, fmt.Sprintf("server.tls.key_file not found: %s", t.KeyFile))
			keyOK = false
		}

		// Existence alone doesn't prove the pair is usable: parse the PEM
		// material and confirm the key matches the certificate.
		if certOK && keyOK {
			if _, err := tlsconfig.LoadServerConfig(t.CertFile, t.KeyFile); err != nil {
				errs = append(errs, fmt.Sprintf("server.tls: cert/key pair invalid: %v", err))
			}
		}
	}

	for i, r := range c.Routes {
		label := fmt.Sprintf("routes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Sprintf("%s.path must begin with '/': %q", label, r.Path))
		}
		if strings.Contains(r.Path, "**") {
			errs = append(errs, fmt.Sprintf("%s.path uses '**', only a single trailing '*' is supported: %q", label, r.Path))
		}
		if idx := strings.Index(r.Path, "*"); idx >= 0 && (idx != len(r.Path)-1 || !strings.HasSuffix(r.Path, "/*")) {
			errs = append(errs, fmt.Sprintf("%s.path: '*' is only allowed as the final segment: %q", label, r.Path))
		}

		u, err := url.Parse(r.Upstream)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("%s.upstream must be an absolute http(s) URL: %q", label, r.Upstream))
		}

		for _, m := range r.Methods {
			if !httpMethods[m] {
				errs = append(errs, fmt.Sprintf("%s.methods contains unrecognized verb: %q", label, m))
			}
		}

		if r.TimeoutMs < 0 {
			errs = append(errs, fmt.Sprintf("%s.timeout_ms must be strictly positive", label))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func deriveTimeouts(c *Config) {
	listenerTimeout := time.Duration(c.Server.TimeoutMs) * time.Millisecond
	c.Server.timeout = listenerTimeout
	for i := range c.Routes {
		r := &c.Routes[i]
		if r.TimeoutMs > 0 {
			d := time.Duration(r.TimeoutMs) * time.Millisecond
			if d < listenerTimeout || listenerTimeout == 0 {
				r.timeout = d
			} else {
				r.timeout = listenerTimeout
			}
		} else {
			r.timeout = listenerTimeout
		}
	}
}

// ListenAddr returns the cleartext bind address in host:port form.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TLSListenAddr returns the TLS bind address in host:port form. Only
// meaningful when c.Server.TLS != nil && c.Server.TLS.Enabled.
func (c *Config) TLSListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.TLS.Port)
}
