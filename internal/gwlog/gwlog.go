// Package gwlog sets up the process-wide structured logger from the
// [logging] table of the configuration: level, text-vs-JSON, and
// optional file output.
package gwlog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ferragate/gateway/internal/config"
)

// New builds a *slog.Logger per cfg and installs it as slog's default,
// matching the way the pack's reverse proxies bootstrap log/slog at
// startup rather than threading a logger value through every call site.
func New(cfg config.Logging) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	if cfg.File {
		dir := cfg.Dir
		if dir == "" {
			dir = "logs"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(dir+"/ferragate.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// parseLevel maps the {trace,debug,info,warn,error} vocabulary onto
// slog's four levels; "trace" has no slog equivalent and is mapped to
// Debug, the closest available verbosity.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
