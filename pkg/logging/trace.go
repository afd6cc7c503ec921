package logging

import (
	"log/slog"
	"sync/atomic"
)

// trace gates the per-fix logs; a gpsd stream at 10 Hz floods DEBUG otherwise.
var trace atomic.Bool

// SetTrace enables or disables trace logs.
func SetTrace(on bool) {
	trace.Store(on)
}

// TraceEnabled reports whether trace logs are on.
func TraceEnabled() bool {
	return trace.Load()
}

// Trace logs a message at DEBUG level, but only if tracing is enabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if trace.Load() {
		logger.Debug(msg, args...)
	}
}

// TraceDefault logs to the default logger if tracing is enabled.
func TraceDefault(msg string, args ...any) {
	if trace.Load() {
		slog.Debug(msg, args...)
	}
}
