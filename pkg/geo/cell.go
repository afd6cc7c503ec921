package geo

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// CellAt returns the H3 index (hex string) of the cell containing p.
func CellAt(p Point, res int) (string, error) {
	if res < 0 || res > 15 {
		return "", fmt.Errorf("h3 resolution %d out of range [0,15]", res)
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for %v: %w", p, err)
	}
	return c.String(), nil
}
