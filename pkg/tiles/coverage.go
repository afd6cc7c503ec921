package tiles

import (
	"fmt"

	"github.com/jonas-p/go-shp"

	"carnav/pkg/geo"
)

// CoverageFromShapefile returns the bounding box stored in a shapefile header,
// e.g. the outline of the region an offline map was cut to.
func CoverageFromShapefile(path string) (geo.BoundingBox, error) {
	r, err := shp.Open(path)
	if err != nil {
		return geo.BoundingBox{}, fmt.Errorf("coverage shapefile: %w", err)
	}
	defer r.Close()

	b := r.BBox()
	box := geo.NewBoundingBox(geo.Point{Lat: b.MinY, Lon: b.MinX}, geo.Point{Lat: b.MaxY, Lon: b.MaxX})
	lo := geo.Point{Lat: box.MinLat, Lon: box.MinLon}
	hi := geo.Point{Lat: box.MaxLat, Lon: box.MaxLon}
	if !lo.Valid() || !hi.Valid() {
		return geo.BoundingBox{}, fmt.Errorf("coverage shapefile %s: bounds %v are not lat/lon", path, b)
	}
	return box, nil
}
