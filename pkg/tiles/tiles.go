// Package tiles serves raster map tiles from an offline MBTiles file or from a
// tile server, and reports the area the map data covers.
package tiles

import (
	"context"
	"errors"
	"fmt"

	"carnav/pkg/cache"
	"carnav/pkg/config"
	"carnav/pkg/geo"
	"carnav/pkg/request"
	"carnav/pkg/tracker"
)

// ErrTileNotFound means the source has no tile at that address.
var ErrTileNotFound = errors.New("tile not found")

// Default tile sizes per mode.
const (
	OfflineTileSize  = 512
	DownloadTileSize = 256
)

// Tile is a slippy-map tile payload.
type Tile struct {
	Data        []byte
	ContentType string
}

// Provider is a tile source.
type Provider interface {
	Name() string
	Tile(ctx context.Context, z, x, y int) (Tile, error)
	// Bounds is the area covered by map data.
	Bounds() geo.BoundingBox
	TileSize() int
	ZoomRange() (lo, hi int)
	Close() error
}

// ValidAddress reports whether z/x/y is inside the tile pyramid.
func ValidAddress(z, x, y int) bool {
	if z < 0 || z > geo.MaxZoom || x < 0 || y < 0 {
		return false
	}
	n := 1 << z
	return x < n && y < n
}

// New builds the provider for the configured map mode. Configured tile size
// and zoom limits override the source defaults.
func New(cfg config.MapConfig, reqCfg config.RequestConfig, tr *tracker.Tracker) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Mode {
	case config.MapModeOffline:
		p, err = OpenMBTiles(cfg.MBTiles, tr)
	case config.MapModeDownload:
		p, err = newDownload(cfg, reqCfg, tr)
	default:
		err = fmt.Errorf("unknown map mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Coverage != "" {
		box, err := CoverageFromShapefile(cfg.Coverage)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p = withBounds(p, box)
	}
	return withOverrides(p, cfg), nil
}

func newDownload(cfg config.MapConfig, reqCfg config.RequestConfig, tr *tracker.Tracker) (Provider, error) {
	dc, err := cache.NewDiskCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return NewDownload(cfg.TileURL, request.New(dc, tr, reqCfg), dc), nil
}

type overridden struct {
	Provider
	bounds   *geo.BoundingBox
	tileSize int
	lo, hi   int
	zoomSet  bool
}

func withBounds(p Provider, box geo.BoundingBox) Provider {
	return &overridden{Provider: p, bounds: &box}
}

func withOverrides(p Provider, cfg config.MapConfig) Provider {
	o, ok := p.(*overridden)
	if !ok {
		o = &overridden{Provider: p}
	}
	if cfg.TileSize > 0 {
		o.tileSize = cfg.TileSize
	}
	if cfg.ZoomMax > 0 {
		lo, hi := o.Provider.ZoomRange()
		o.lo, o.hi = max(lo, cfg.ZoomMin), min(hi, cfg.ZoomMax)
		if o.hi < o.lo {
			o.lo, o.hi = lo, hi
		}
		o.zoomSet = true
	}
	if o.bounds == nil && o.tileSize == 0 && !o.zoomSet {
		return p
	}
	return o
}

func (o *overridden) Bounds() geo.BoundingBox {
	if o.bounds != nil {
		return *o.bounds
	}
	return o.Provider.Bounds()
}

func (o *overridden) TileSize() int {
	if o.tileSize > 0 {
		return o.tileSize
	}
	return o.Provider.TileSize()
}

func (o *overridden) ZoomRange() (int, int) {
	if o.zoomSet {
		return o.lo, o.hi
	}
	return o.Provider.ZoomRange()
}

// CacheInfo describes the on-disk cache of a download source.
type CacheInfo struct {
	Dir     string `json:"dir"`
	Entries int64  `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Cache reports the tile cache behind p, if it has one.
func Cache(p Provider) (CacheInfo, bool) {
	if o, ok := p.(*overridden); ok {
		p = o.Provider
	}
	d, ok := p.(*Download)
	if !ok || d.cache == nil {
		return CacheInfo{}, false
	}
	n, b := d.cache.Stats()
	return CacheInfo{Dir: d.cache.Dir(), Entries: n, Bytes: b}, true
}
