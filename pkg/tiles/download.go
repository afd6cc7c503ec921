package tiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"carnav/pkg/cache"
	"carnav/pkg/geo"
	"carnav/pkg/request"
)

// DefaultTileURL is the OpenStreetMap standard (Mapnik) layer.
const DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

var subdomains = []string{"a", "b", "c"}

// Download proxies a tile server through the request client, caching tiles
// on disk.
type Download struct {
	template string
	client   *request.Client
	cache    *cache.DiskCache
	next     atomic.Uint32
}

// NewDownload serves tiles from template, which may contain {z} {x} {y} and
// {s} (rotated over a, b, c). dc may be nil.
func NewDownload(template string, client *request.Client, dc *cache.DiskCache) *Download {
	if strings.TrimSpace(template) == "" {
		template = DefaultTileURL
	}
	return &Download{template: template, client: client, cache: dc}
}

func (d *Download) Name() string { return "download" }

// URL expands the template for one tile.
func (d *Download) URL(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", subdomains[d.next.Add(1)%uint32(len(subdomains))],
	)
	return r.Replace(d.template)
}

func (d *Download) Tile(ctx context.Context, z, x, y int) (Tile, error) {
	if !ValidAddress(z, x, y) {
		return Tile{}, ErrTileNotFound
	}
	key := fmt.Sprintf("%d/%d/%d", z, x, y)
	resp, err := d.client.Get(ctx, d.URL(z, x, y), key)
	if errors.Is(err, request.ErrNotFound) {
		return Tile{}, ErrTileNotFound
	}
	if err != nil {
		return Tile{}, fmt.Errorf("download tile %s: %w", key, err)
	}
	return Tile{Data: resp.Body, ContentType: resp.ContentType}, nil
}

func (d *Download) Bounds() geo.BoundingBox { return geo.World() }

func (d *Download) TileSize() int { return DownloadTileSize }

func (d *Download) ZoomRange() (int, int) { return 0, 18 }

// Close removes a per-run cache directory.
func (d *Download) Close() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Remove()
}
