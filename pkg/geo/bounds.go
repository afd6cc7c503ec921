package geo

import (
	"github.com/paulmach/orb"
)

// Web-Mercator latitude limit; maptile clamps beyond this.
const MaxMercatorLat = 85.0511

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// NewBoundingBox returns the smallest box containing all points.
// The per-axis min/max does not depend on argument order.
func NewBoundingBox(points ...Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, orb.Point{p.Lon, p.Lat})
	}
	return FromBound(mp.Bound())
}

// FromBound converts an orb.Bound (x=lon, y=lat).
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLat: b.Min.Lat(),
		MinLon: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLon: b.Max.Lon(),
	}
}

// World covers the whole Web-Mercator square.
func World() BoundingBox {
	return BoundingBox{MinLat: -MaxMercatorLat, MinLon: -180, MaxLat: MaxMercatorLat, MaxLon: 180}
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p Point) bool {
	return b.Bound().Contains(orb.Point{p.Lon, p.Lat})
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	c := b.Bound().Center()
	return Point{Lat: c.Lat(), Lon: c.Lon()}
}

// IsZero is true for the zero value, which is used as "no bounds known".
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}
