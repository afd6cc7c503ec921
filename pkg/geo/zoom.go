package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom caps ZoomForBounds for degenerate (zero-area) boxes.
const MaxZoom = 30

// Dimension is a viewport size in screen pixels.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid is true when both sides are positive.
func (d Dimension) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// ZoomForBounds returns the largest zoom level at which box fits inside dim
// when rendered with square tiles of tileSize pixels. Zero-area boxes yield
// MaxZoom; an invalid dimension or tile size yields 0.
func ZoomForBounds(dim Dimension, box BoundingBox, tileSize int) int {
	if !dim.Valid() || tileSize <= 0 {
		return 0
	}

	// Pixel extent at zoom 0; every further level doubles it.
	topLeft := maptile.Fraction(orb.Point{box.MinLon, box.MaxLat}, 0)
	bottomRight := maptile.Fraction(orb.Point{box.MaxLon, box.MinLat}, 0)
	dx := math.Abs(bottomRight[0]-topLeft[0]) * float64(tileSize)
	dy := math.Abs(bottomRight[1]-topLeft[1]) * float64(tileSize)

	zx := -math.Log2(dx / float64(dim.Width))
	zy := -math.Log2(dy / float64(dim.Height))
	z := math.Floor(math.Min(zx, zy))

	switch {
	case math.IsNaN(z), z < 0:
		return 0
	case z > MaxZoom:
		return MaxZoom
	}
	return int(z)
}

// ClampZoom limits z to [lo, hi].
func ClampZoom(z, lo, hi int) int {
	if z < lo {
		return lo
	}
	if z > hi {
		return hi
	}
	return z
}

// TileAt returns the slippy-map tile containing p at zoom z.
func TileAt(p Point, z int) maptile.Tile {
	return maptile.At(orb.Point{p.Lon, p.Lat}, maptile.Zoom(ClampZoom(z, 0, MaxZoom)))
}
