// Package cache stores downloaded map tiles on disk for the lifetime of a run.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// DiskCache implements Cacher with one file per key.
type DiskCache struct {
	dir       string
	ephemeral bool
	entries   atomic.Int64
	bytes     atomic.Int64
}

// DirPrefix names per-run cache directories under the temp dir.
const DirPrefix = "carnav-"

// NewDiskCache uses dir, or a fresh $TMP/carnav-<uuid> directory when dir is
// empty. A fresh directory is removed again by Remove.
func NewDiskCache(dir string) (*DiskCache, error) {
	ephemeral := dir == ""
	if ephemeral {
		dir = filepath.Join(os.TempDir(), DirPrefix+uuid.NewString())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	slog.Debug("Tile cache ready", "dir", dir, "ephemeral", ephemeral)
	return &DiskCache{dir: dir, ephemeral: ephemeral}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

// path spreads keys over 256 subdirectories.
func (c *DiskCache) path(key string) string {
	sum := sha1.Sum([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, h[:2], h[2:])
}

func (c *DiskCache) GetCache(_ context.Context, key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Tile cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// SetCache writes atomically through a temp file so readers never see a
// partial tile.
func (c *DiskCache) SetCache(_ context.Context, key string, val []byte) error {
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache temp file: %w", err)
	}
	if _, err := tmp.Write(val); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache close: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache rename: %w", err)
	}
	c.entries.Add(1)
	c.bytes.Add(int64(len(val)))
	return nil
}

// Stats reports what this run has written.
func (c *DiskCache) Stats() (entries, bytes int64) {
	return c.entries.Load(), c.bytes.Load()
}

// Remove deletes an ephemeral cache directory. Configured directories are kept.
func (c *DiskCache) Remove() error {
	if !c.ephemeral {
		return nil
	}
	return os.RemoveAll(c.dir)
}
