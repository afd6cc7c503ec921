package tiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // Register driver

	"carnav/pkg/geo"
	"carnav/pkg/tracker"
)

// MBTiles reads tiles from an MBTiles 1.3 sqlite file. Rows are stored in
// TMS order, so y is flipped on lookup.
type MBTiles struct {
	db       *sql.DB
	path     string
	tracker  *tracker.Tracker
	meta     map[string]string
	bounds   geo.BoundingBox
	minZoom  int
	maxZoom  int
	mimeType string
}

// OpenMBTiles opens path read-only and reads its metadata.
func OpenMBTiles(path string, tr *tracker.Tracker) (*MBTiles, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("offline map: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}

	if tr == nil {
		tr = tracker.New()
	}
	m := &MBTiles{db: db, path: path, tracker: tr, meta: make(map[string]string)}
	if err := m.loadMetadata(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Offline map opened", "path", path, "name", m.meta["name"], "format", m.meta["format"],
		"zoom_min", m.minZoom, "zoom_max", m.maxZoom, "bounds", m.bounds)
	return m, nil
}

func (m *MBTiles) loadMetadata() error {
	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return fmt.Errorf("mbtiles metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("mbtiles metadata: %w", err)
		}
		m.meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("mbtiles metadata: %w", err)
	}

	m.bounds = geo.World()
	if b, err := parseBounds(m.meta["bounds"]); err == nil {
		m.bounds = b
	} else if m.meta["bounds"] != "" {
		slog.Warn("Ignoring malformed mbtiles bounds", "value", m.meta["bounds"], "error", err)
	}

	m.minZoom, m.maxZoom = 0, 14
	if z, err := strconv.Atoi(m.meta["minzoom"]); err == nil {
		m.minZoom = z
	}
	if z, err := strconv.Atoi(m.meta["maxzoom"]); err == nil {
		m.maxZoom = z
	}
	if m.maxZoom < m.minZoom {
		m.maxZoom = m.minZoom
	}

	m.mimeType = formatMIME(m.meta["format"])
	return nil
}

// parseBounds reads "minlon,minlat,maxlon,maxlat".
func parseBounds(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("want 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, err
		}
		v[i] = f
	}
	box := geo.NewBoundingBox(geo.Point{Lat: v[1], Lon: v[0]}, geo.Point{Lat: v[3], Lon: v[2]})
	if !(geo.Point{Lat: box.MinLat, Lon: box.MinLon}).Valid() || !(geo.Point{Lat: box.MaxLat, Lon: box.MaxLon}).Valid() {
		return geo.BoundingBox{}, errors.New("bounds out of range")
	}
	return box, nil
}

func formatMIME(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "pbf":
		return "application/x-protobuf"
	default:
		return ""
	}
}

func (m *MBTiles) Name() string { return "mbtiles" }

func (m *MBTiles) Tile(ctx context.Context, z, x, y int) (Tile, error) {
	if !ValidAddress(z, x, y) {
		return Tile{}, ErrTileNotFound
	}
	row := (1 << z) - 1 - y

	var data []byte
	err := m.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		z, x, row).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		m.tracker.TrackNotFound(m.Name())
		return Tile{}, ErrTileNotFound
	}
	if err != nil {
		m.tracker.TrackFailure(m.Name())
		return Tile{}, fmt.Errorf("mbtiles read %d/%d/%d: %w", z, x, y, err)
	}
	m.tracker.TrackFetched(m.Name())

	ct := m.mimeType
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Tile{Data: data, ContentType: ct}, nil
}

func (m *MBTiles) Bounds() geo.BoundingBox { return m.bounds }

func (m *MBTiles) TileSize() int { return OfflineTileSize }

func (m *MBTiles) ZoomRange() (int, int) { return m.minZoom, m.maxZoom }

// Metadata returns a copy of the metadata table.
func (m *MBTiles) Metadata() map[string]string {
	out := make(map[string]string, len(m.meta))
	for k, v := range m.meta {
		out[k] = v
	}
	return out
}

func (m *MBTiles) Close() error { return m.db.Close() }
