// Package upstream provides the single, process-wide pooled HTTP client
// used to dispatch every proxied request.
package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"time"

	"github.com/ferragate/gateway/internal/config"
)

// Registry owns the long-lived *http.Transport shared by every request.
// It is built once at startup and never mutated; CloseIdleConnections
// drops its pooled connections at shutdown.
type Registry struct {
	transport *http.Transport
}

// Options tunes the pooled transport. Zero value yields DefaultOptions.
type Options struct {
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
	// RootCAs, when non-nil, replaces the system pool as the set of trusted
	// upstream roots; it is not merged with the system pool.
	RootCAs *x509.CertPool
}

// DefaultOptions mirrors the pool sizing and timeouts of the upstream
// client's connection budget.
func DefaultOptions() Options {
	return Options{
		DialTimeout:         config.ConnectTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		IdleConnTimeout:     config.UpstreamIdleTimeout,
		MaxIdleConnsPerHost: config.UpstreamMaxIdlePerHost,
	}
}

// New builds the shared transport: connection pooling keyed by
// (scheme, host, port) as implemented by net/http.Transport itself, no
// automatic redirect following is configured at the client layer (the
// gateway uses RoundTrip directly, which never follows redirects), and
// HTTP/1.1 plus HTTP/2 negotiated by ALPN for HTTPS upstreams.
func New(opts Options) *Registry {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	tr := &http.Transport{
		Proxy:                 nil, // the gateway is the proxy; it must not honor HTTP_PROXY for upstream calls
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			RootCAs:    opts.RootCAs, // nil means the system pool; non-nil replaces it
			NextProtos: []string{"h2", "http/1.1"},
		},
	}
	return &Registry{transport: tr}
}

// RoundTripper returns the shared transport used for every outbound call.
func (r *Registry) RoundTripper() http.RoundTripper { return r.transport }

// CloseIdleConnections drops pooled idle connections, used at shutdown.
func (r *Registry) CloseIdleConnections() { r.transport.CloseIdleConnections() }
