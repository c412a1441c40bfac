// Package logger provides structured logging setup for crewd.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/crewforge/crewd/internal/config"
)

const (
	defaultAsyncBuffer = 4096
	asyncWorkers       = 2
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// When cfg.Async is set, records are handled by a buffered worker pool
// sized by cfg.Buffer; call Close on the returned Closer to flush before
// exit.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		buffer := cfg.Buffer
		if buffer <= 0 {
			buffer = defaultAsyncBuffer
		}
		ah := NewAsyncHandler(handler, buffer, asyncWorkers)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
