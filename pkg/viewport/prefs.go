package viewport

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"carnav/pkg/config"
	"carnav/pkg/geo"
	"carnav/pkg/store"
)

// LoadPosition restores the last saved view from st. It reports false when
// nothing usable was stored; the model is left unchanged in that case and no
// subscriber is notified.
func (m *Model) LoadPosition(ctx context.Context, st store.StateStore) bool {
	latS, ok1 := st.GetState(ctx, config.KeyViewLat)
	lonS, ok2 := st.GetState(ctx, config.KeyViewLon)
	zoomS, ok3 := st.GetState(ctx, config.KeyViewZoom)
	if !ok1 || !ok2 || !ok3 {
		return false
	}

	lat, err1 := strconv.ParseFloat(latS, 64)
	lon, err2 := strconv.ParseFloat(lonS, 64)
	zoom, err3 := strconv.Atoi(zoomS)
	if err := errors.Join(err1, err2, err3); err != nil {
		return false
	}
	center := geo.Point{Lat: lat, Lon: lon}
	if !center.Valid() {
		return false
	}

	m.mu.Lock()
	m.pos = Position{Center: center, Zoom: geo.ClampZoom(zoom, m.zoomMin, m.zoomMax)}
	m.mu.Unlock()
	return true
}

// SavePosition writes the current view to st.
func (m *Model) SavePosition(ctx context.Context, st store.StateStore) error {
	pos := m.Position()
	vals := []struct{ key, val string }{
		{config.KeyViewLat, strconv.FormatFloat(pos.Center.Lat, 'f', -1, 64)},
		{config.KeyViewLon, strconv.FormatFloat(pos.Center.Lon, 'f', -1, 64)},
		{config.KeyViewZoom, strconv.Itoa(pos.Zoom)},
	}
	for _, v := range vals {
		if err := st.SetState(ctx, v.key, v.val); err != nil {
			return fmt.Errorf("save view position: %w", err)
		}
	}
	return nil
}
