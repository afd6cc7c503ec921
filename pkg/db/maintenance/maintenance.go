// Package maintenance runs housekeeping once at startup.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carnav/pkg/cache"
	"carnav/pkg/config"
	"carnav/pkg/db"
	"carnav/pkg/store"
)

// StaleCacheAge is how old a leftover per-run tile cache must be before it
// is removed. Younger ones may belong to a running instance.
const StaleCacheAge = 24 * time.Hour

// Run executes all maintenance tasks. Failures are logged, never fatal.
// tmpDir is where per-run tile caches live; empty means os.TempDir().
func Run(ctx context.Context, s store.Store, d *db.DB, tmpDir string) error {
	slog.Info("Starting database maintenance...")

	if n, err := pruneState(ctx, s); err != nil {
		slog.Error("State pruning failed", "error", err)
	} else {
		slog.Info("State pruning completed", "removed", n)
	}

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if n, err := pruneStaleCaches(tmpDir, time.Now().Add(-StaleCacheAge)); err != nil {
		slog.Error("Tile cache pruning failed", "error", err)
	} else {
		slog.Info("Tile cache pruning completed", "removed", n)
	}

	if _, err := d.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		slog.Warn("Database optimize failed", "error", err)
	}

	return nil
}

// pruneState removes preference keys that this version no longer reads.
func pruneState(ctx context.Context, s store.Store) (int, error) {
	all, err := s.ListState(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list state: %w", err)
	}
	removed := 0
	for key := range all {
		if config.IsKnownKey(key) {
			continue
		}
		if err := s.DeleteState(ctx, key); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		slog.Debug("Removed unknown state key", "key", key)
		removed++
	}
	return removed, nil
}

// pruneStaleCaches deletes per-run tile caches last modified before cutoff.
// Crashed runs leave them behind.
func pruneStaleCaches(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), cache.DirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove stale tile cache", "path", path, "error", err)
			continue
		}
		slog.Debug("Removed stale tile cache", "path", path)
		removed++
	}
	return removed, nil
}
