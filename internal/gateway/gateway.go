// Package gateway runs the gateway's cleartext and optional TLS listeners
// and coordinates their graceful shutdown via a signal-driven context,
// generalized from one listener to two.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ferragate/gateway/internal/config"
	"github.com/ferragate/gateway/internal/tlsconfig"
)

// Supervisor owns the cleartext and (optional) TLS http.Server instances
// for one gateway process.
type Supervisor struct {
	cfg *config.Config
	log *slog.Logger

	cleartext *http.Server
	tlsServer *http.Server
}

// New builds a Supervisor. handler serves every non-redirect request;
// when cfg.Server.TLS.RedirectHTTP is set, the cleartext listener instead
// runs a 308 redirector to the HTTPS equivalent.
func New(cfg *config.Config, handler http.Handler, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	cleartextHandler := handler
	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled && cfg.Server.TLS.RedirectHTTP {
		cleartextHandler = redirectHandler(cfg.Server.TLS.Port)
	}

	s := &Supervisor{
		cfg: cfg,
		log: log,
		cleartext: &http.Server{
			Addr:              cfg.ListenAddr(),
			Handler:           cleartextHandler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       config.UpstreamIdleTimeout,
		},
	}

	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		tlsCfg, err := tlsconfig.LoadServerConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("gateway: load TLS config: %w", err)
		}
		s.tlsServer = &http.Server{
			Addr:              cfg.TLSListenAddr(),
			Handler:           handler,
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       config.UpstreamIdleTimeout,
		}
	}

	return s, nil
}

// Run starts every configured listener and blocks until ctx is canceled,
// then shuts each server down within config.ShutdownGracePeriod.
func (s *Supervisor) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.log.Info("listening", "addr", s.cleartext.Addr, "tls", false)
		if err := s.cleartext.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("cleartext listener: %w", err)
			return
		}
		errCh <- nil
	}()

	if s.tlsServer != nil {
		go func() {
			s.log.Info("listening", "addr", s.tlsServer.Addr, "tls", true)
			if err := s.tlsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tls listener: %w", err)
				return
			}
			errCh <- nil
		}()
	} else {
		errCh <- nil
	}

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return err
		}
		// one listener exited cleanly (e.g. in tests); keep waiting for the
		// other or for cancellation.
		select {
		case <-ctx.Done():
			return s.shutdown()
		case err := <-errCh:
			return err
		}
	}
}

func (s *Supervisor) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer cancel()

	var errs []error
	if err := s.cleartext.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cleartext shutdown: %w", err))
	}
	if s.tlsServer != nil {
		if err := s.tlsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tls shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// redirectHandler answers every request with a 308 to the https://
// equivalent on tlsPort, preserving method, path, and query. The port is
// omitted from the authority when it is the default HTTPS port (443).
func redirectHandler(tlsPort int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		authority := host
		if tlsPort != 443 {
			authority = host + ":" + strconv.Itoa(tlsPort)
		}
		target := url.URL{
			Scheme:   "https",
			Host:     authority,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
		}
		http.Redirect(w, r, target.String(), config.RedirectStatusCode)
	}
}
