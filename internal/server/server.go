// Package server wires the top-level http.ServeMux and the middleware
// chain (panic recovery, request-id propagation, access logging) shared
// by every request, grounded in mercator-hq-jupiter/pkg/proxy/middleware
// (RecoveryMiddleware, RequestIDMiddleware, LoggingMiddleware) adapted to
// this gateway's reqid and error-JSON conventions.
package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ferragate/gateway/internal/health"
	"github.com/ferragate/gateway/internal/reqid"
)

// New builds the top-level handler: /health, /health/live, /health/ready
// route to the health surface; everything else falls through to proxy.
func New(proxyHandler http.Handler, healthState *health.State, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", healthState.LivenessHandler())
	mux.HandleFunc("/health/ready", healthState.ReadinessHandler())
	mux.HandleFunc("/health", healthState.Handler())
	mux.Handle("/", proxyHandler)

	var h http.Handler = mux
	h = accessLogMiddleware(h, log)
	h = requestIDMiddleware(h)
	h = recoveryMiddleware(h, log)
	return h
}

// recoveryMiddleware is the outermost layer: it must run before any other
// middleware can panic, so a bad handler never takes the listener down.
func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				id := reqid.FromContext(r.Context())
				if id == "" {
					id = w.Header().Get(reqid.Header)
				}
				log.Error("panic in handler",
					"request_id", id,
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(reqid.Header, id)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal","request_id":"` + id + `"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := reqid.FromRequest(r)
		ctx := reqid.WithContext(r.Context(), id)
		w.Header().Set(reqid.Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusCapture wraps http.ResponseWriter to record the status code for
// the access log, since http.ResponseWriter itself never exposes it.
type statusCapture struct {
	http.ResponseWriter
	status  int
	bytes   int64
	written bool
}

func (w *statusCapture) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapture) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func accessLogMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sc, r)

		id := reqid.FromContext(r.Context())
		level := slog.LevelInfo
		switch {
		case sc.status >= 500:
			level = slog.LevelError
		case sc.status >= 400:
			level = slog.LevelWarn
		}
		log.Log(r.Context(), level, "request completed",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"host", r.Host,
			"status", sc.status,
			"bytes", sc.bytes,
			"latency_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
