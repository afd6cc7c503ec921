package tiles

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carnav/pkg/cache"
	"carnav/pkg/config"
	"carnav/pkg/geo"
	"carnav/pkg/request"
	"carnav/pkg/tracker"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

// writeMBTiles creates a tiny offline map with tiles given in XYZ order.
func writeMBTiles(t *testing.T, meta map[string]string, xyz map[[3]int][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shanghai.mbtiles")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, q := range []string{
		"CREATE TABLE metadata (name TEXT, value TEXT)",
		"CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)",
	} {
		_, err := db.Exec(q)
		require.NoError(t, err)
	}
	for k, v := range meta {
		_, err := db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v)
		require.NoError(t, err)
	}
	for a, data := range xyz {
		z, x, y := a[0], a[1], a[2]
		_, err := db.Exec("INSERT INTO tiles VALUES (?, ?, ?, ?)", z, x, (1<<z)-1-y, data)
		require.NoError(t, err)
	}
	return path
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		z, x, y int
		want    bool
	}{
		{0, 0, 0, true},
		{0, 1, 0, false},
		{1, 1, 1, true},
		{1, 2, 0, false},
		{14, 13722, 6692, true},
		{-1, 0, 0, false},
		{3, -1, 0, false},
		{31, 0, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidAddress(tt.z, tt.x, tt.y), "%d/%d/%d", tt.z, tt.x, tt.y)
	}
}

func TestMBTiles(t *testing.T) {
	tile := append(append([]byte{}, pngHeader...), "z14"...)
	path := writeMBTiles(t, map[string]string{
		"name":    "shanghai",
		"format":  "png",
		"bounds":  "120.85,30.68,122.12,31.88",
		"minzoom": "6",
		"maxzoom": "16",
	}, map[[3]int][]byte{
		{14, 13722, 6692}: tile,
		{1, 1, 0}:         pngHeader,
	})

	tr := tracker.New()
	m, err := OpenMBTiles(path, tr)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "mbtiles", m.Name())
	assert.Equal(t, OfflineTileSize, m.TileSize())
	lo, hi := m.ZoomRange()
	assert.Equal(t, 6, lo)
	assert.Equal(t, 16, hi)
	assert.Equal(t, geo.BoundingBox{MinLat: 30.68, MinLon: 120.85, MaxLat: 31.88, MaxLon: 122.12}, m.Bounds())
	assert.Equal(t, "shanghai", m.Metadata()["name"])

	ctx := context.Background()
	got, err := m.Tile(ctx, 14, 13722, 6692)
	require.NoError(t, err)
	assert.Equal(t, tile, got.Data)
	assert.Equal(t, "image/png", got.ContentType)

	// Row flip: XYZ 1/1/0 is TMS row 1.
	_, err = m.Tile(ctx, 1, 1, 0)
	require.NoError(t, err)
	_, err = m.Tile(ctx, 1, 1, 1)
	assert.ErrorIs(t, err, ErrTileNotFound)

	_, err = m.Tile(ctx, 2, 9, 0)
	assert.ErrorIs(t, err, ErrTileNotFound)

	st := tr.Snapshot()["mbtiles"]
	assert.Equal(t, int64(2), st.Fetched)
	assert.Equal(t, int64(1), st.NotFound)
}

func TestMBTiles_MissingMetadataDefaults(t *testing.T) {
	path := writeMBTiles(t, map[string]string{"bounds": "garbage"}, nil)
	m, err := OpenMBTiles(path, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, geo.World(), m.Bounds())
	lo, hi := m.ZoomRange()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 14, hi)
}

func TestOpenMBTiles_Missing(t *testing.T) {
	_, err := OpenMBTiles(filepath.Join(t.TempDir(), "none.mbtiles"), nil)
	assert.Error(t, err)
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds("122.12, 31.88, 120.85, 30.68")
	require.NoError(t, err)
	assert.Equal(t, geo.BoundingBox{MinLat: 30.68, MinLon: 120.85, MaxLat: 31.88, MaxLon: 122.12}, b)

	_, err = parseBounds("1,2,3")
	assert.Error(t, err)
	_, err = parseBounds("0,0,0,95")
	assert.Error(t, err)
}

func tileServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if strings.HasPrefix(r.URL.Path, "/18/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(append(append([]byte{}, pngHeader...), r.URL.Path...))
	}))
	t.Cleanup(svr.Close)
	return svr
}

func newTestDownload(t *testing.T, template string) *Download {
	t.Helper()
	dc, err := cache.NewDiskCache(t.TempDir())
	require.NoError(t, err)
	cfg := config.DefaultConfig().Request
	cfg.Backoff.BaseDelay = config.Duration(time.Millisecond)
	return NewDownload(template, request.New(dc, tracker.New(), cfg), dc)
}

func TestDownload(t *testing.T) {
	var hits int32
	svr := tileServer(t, &hits)
	d := newTestDownload(t, svr.URL+"/{z}/{x}/{y}.png")

	assert.Equal(t, DownloadTileSize, d.TileSize())
	assert.Equal(t, geo.World(), d.Bounds())
	lo, hi := d.ZoomRange()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 18, hi)

	ctx := context.Background()
	got, err := d.Tile(ctx, 14, 13722, 6692)
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.ContentType)
	assert.True(t, strings.HasSuffix(string(got.Data), "/14/13722/6692.png"))

	_, err = d.Tile(ctx, 14, 13722, 6692)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second request is served from cache")

	_, err = d.Tile(ctx, 18, 1, 1)
	assert.ErrorIs(t, err, ErrTileNotFound)

	_, err = d.Tile(ctx, 1, 5, 5)
	assert.ErrorIs(t, err, ErrTileNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "invalid address never reaches upstream")
}

func TestDownload_URL(t *testing.T) {
	d := NewDownload("https://{s}.tile.example.org/{z}/{x}/{y}.png", nil, nil)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[d.URL(3, 4, 5)] = true
	}
	assert.Len(t, seen, 3, "subdomains rotate")
	for u := range seen {
		assert.True(t, strings.HasSuffix(u, ".tile.example.org/3/4/5.png"), u)
	}

	assert.Equal(t, "https://tile.openstreetmap.org/1/0/1.png", NewDownload("", nil, nil).URL(1, 0, 1))
}

func writeShapefile(t *testing.T, pts ...shp.Point) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	for i := range pts {
		w.Write(&pts[i])
	}
	w.Close()
	return path
}

func TestCoverageFromShapefile(t *testing.T) {
	path := writeShapefile(t,
		shp.Point{X: 120.85, Y: 30.68},
		shp.Point{X: 122.12, Y: 31.88},
		shp.Point{X: 121.44, Y: 31.19},
	)
	box, err := CoverageFromShapefile(path)
	require.NoError(t, err)
	assert.InDelta(t, 30.68, box.MinLat, 1e-9)
	assert.InDelta(t, 122.12, box.MaxLon, 1e-9)
	assert.True(t, box.Contains(geo.Point{Lat: 31.19134, Lon: 121.44579}))

	_, err = CoverageFromShapefile(filepath.Join(t.TempDir(), "missing.shp"))
	assert.Error(t, err)
}

func TestCoverageFromShapefile_ProjectedRejected(t *testing.T) {
	path := writeShapefile(t, shp.Point{X: 350000, Y: 3450000}, shp.Point{X: 360000, Y: 3460000})
	_, err := CoverageFromShapefile(path)
	assert.Error(t, err)
}

func TestNew_Offline(t *testing.T) {
	path := writeMBTiles(t, map[string]string{
		"bounds":  "120.85,30.68,122.12,31.88",
		"minzoom": "6",
		"maxzoom": "16",
	}, nil)
	cov := writeShapefile(t, shp.Point{X: 121.0, Y: 31.0}, shp.Point{X: 121.5, Y: 31.5})

	cfg := config.DefaultConfig().Map
	cfg.Mode = config.MapModeOffline
	cfg.MBTiles = path
	cfg.Coverage = cov
	cfg.ZoomMax = 14

	p, err := New(cfg, config.DefaultConfig().Request, tracker.New())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "mbtiles", p.Name())
	assert.Equal(t, OfflineTileSize, p.TileSize())
	lo, hi := p.ZoomRange()
	assert.Equal(t, 6, lo)
	assert.Equal(t, 14, hi)
	assert.InDelta(t, 31.5, p.Bounds().MaxLat, 1e-9, "coverage shapefile wins over metadata")

	_, ok := Cache(p)
	assert.False(t, ok, "offline maps have no download cache")
}

func TestNew_Download(t *testing.T) {
	cfg := config.DefaultConfig().Map
	cfg.CacheDir = t.TempDir()
	cfg.TileSize = 512

	p, err := New(cfg, config.DefaultConfig().Request, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "download", p.Name())
	assert.Equal(t, 512, p.TileSize(), "configured tile size overrides the default")
	assert.Equal(t, geo.World(), p.Bounds())

	info, ok := Cache(p)
	require.True(t, ok)
	assert.Equal(t, cfg.CacheDir, info.Dir)
	assert.Zero(t, info.Entries)
}

func TestNew_UnknownMode(t *testing.T) {
	cfg := config.DefaultConfig().Map
	cfg.Mode = "vector"
	_, err := New(cfg, config.DefaultConfig().Request, nil)
	assert.Error(t, err)
}
