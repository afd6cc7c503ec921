// Package logging sets up the server and request loggers.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"carnav/pkg/config"
)

// RequestLogger is the logger instance for HTTP requests.
// It discards until Init runs.
var RequestLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// serverLevel is the server log file level; console and capture never go
// below INFO.
var serverLevel slog.LevelVar

// Init initializes the logging system based on configuration.
// It returns a cleanup function to close log files.
func Init(cfg *config.LogConfig) (func(), error) {
	// Keep the previous run next to the fresh logs.
	rotatePaths(cfg.Server.Path, cfg.Requests.Path)

	serverFile, err := openLog(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	requestFile, err := openLog(cfg.Requests.Path)
	if err != nil {
		serverFile.Close()
		return nil, fmt.Errorf("failed to setup requests logger: %w", err)
	}

	SetLevel(cfg.Server.Level)
	slog.SetDefault(slog.New(&teeHandler{handlers: []slog.Handler{
		slog.NewTextHandler(serverFile, &slog.HandlerOptions{Level: &serverLevel, AddSource: ParseLevel(cfg.Server.Level) == slog.LevelDebug}),
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}))

	RequestLogger = slog.New(slog.NewTextHandler(requestFile, &slog.HandlerOptions{Level: ParseLevel(cfg.Requests.Level)}))

	return func() {
		serverFile.Close()
		requestFile.Close()
	}, nil
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
// TRACE is DEBUG; unknown strings fall back to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the server log file level at runtime. TRACE also turns
// on the per-fix trace logs.
func SetLevel(s string) {
	serverLevel.Set(ParseLevel(s))
	SetTrace(strings.EqualFold(strings.TrimSpace(s), "TRACE"))
}

// Level returns the current server log file level.
func Level() slog.Level {
	return serverLevel.Level()
}

// openLog opens path for appending; truncation is handled by rotation.
func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// teeHandler writes each record to every handler that accepts its level.
// A failing sink does not keep the record from the others.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// nolint:gocritic // r must be passed by value to implement slog.Handler
func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *teeHandler) derive(fn func(slog.Handler) slog.Handler) *teeHandler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = fn(h)
	}
	return &teeHandler{handlers: out}
}

// rotatePaths renames existing log files to .old, replacing any previous .old.
func rotatePaths(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			oldPath := p + ".old"
			_ = os.Remove(oldPath)
			_ = os.Rename(p, oldPath)
		}
	}
}
