// Package nav wires the fix history, the focus engine and the viewport into
// the running navigator.
package nav

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"carnav/pkg/focus"
	"carnav/pkg/geo"
	"carnav/pkg/history"
	"carnav/pkg/location"
	"carnav/pkg/logging"
	"carnav/pkg/metrics"
	"carnav/pkg/store"
	"carnav/pkg/viewport"
)

// Restore outcomes.
const (
	RestoreLoaded      = "loaded"
	RestoreMissing     = "missing"
	RestoreZeroZoom    = "zero_zoom"
	RestoreOutOfBounds = "out_of_bounds"
)

// Option configures a State.
type Option func(*State)

// WithMetrics attaches collectors. Nil is allowed.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *State) { s.metrics = m }
}

// WithH3Resolution sets the resolution of the debug cell.
func WithH3Resolution(res int) Option {
	return func(s *State) { s.h3Res = res }
}

// State is the navigator: every accepted fix lands in the history, which
// triggers a focus pass that moves the viewport.
type State struct {
	hist    *history.History
	engine  *focus.Engine
	view    *viewport.Model
	metrics *metrics.Metrics
	h3Res   int
	course  *geo.Course

	mu      sync.RWMutex
	lastFix location.Fix
	hasFix  bool
}

// New connects h to engine so that every AddFix runs a focus pass.
func New(h *history.History, engine *focus.Engine, view *viewport.Model, opts ...Option) *State {
	s := &State{
		hist:   h,
		engine: engine,
		view:   view,
		h3Res:  9,
		course: geo.NewCourse(5, 15),
	}
	for _, opt := range opts {
		opt(s)
	}
	h.SetObserver(s.onHistoryChange)
	return s
}

func (s *State) onHistoryChange() {
	s.engine.Trigger()
	s.metrics.SetHistorySize(s.hist.Len())
}

// History returns the underlying fix history.
func (s *State) History() *history.History { return s.hist }

// Engine returns the focus engine.
func (s *State) Engine() *focus.Engine { return s.engine }

// Viewport returns the view model.
func (s *State) Viewport() *viewport.Model { return s.view }

// AddFix feeds one fix. Invalid coordinates are ignored.
func (s *State) AddFix(f location.Fix) bool {
	if !(history.Fix{Lat: f.Lat, Lon: f.Lon}).Valid() {
		slog.Warn("Ignoring invalid fix", "source", f.Source, "lat", f.Lat, "lon", f.Lon)
		return false
	}
	if f.Time.IsZero() {
		f.Time = time.Now().UTC()
	}

	s.mu.Lock()
	s.lastFix = f
	s.hasFix = true
	s.mu.Unlock()
	s.course.Push(geo.Point{Lat: f.Lat, Lon: f.Lon})

	logging.TraceDefault("Fix", "source", f.Source, "lat", f.Lat, "lon", f.Lon)
	s.hist.AddFix(f.Lat, f.Lon)
	s.metrics.FixReceived(f.Source)
	return true
}

// Run consumes fixes until ctx is done or the channel is closed.
func (s *State) Run(ctx context.Context, fixes <-chan location.Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fixes:
			if !ok {
				return
			}
			s.AddFix(f)
		}
	}
}

// LastFix returns the most recent accepted fix.
func (s *State) LastFix() (location.Fix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFix, s.hasFix
}

// Restore loads the saved view. When nothing usable was saved, the saved zoom
// is 0 or the saved center lies outside coverage, the home anchor is injected
// as the first fix so the map opens on a sensible view.
func (s *State) Restore(ctx context.Context, st store.StateStore, coverage geo.BoundingBox) string {
	outcome := RestoreLoaded
	switch {
	case !s.view.LoadPosition(ctx, st):
		outcome = RestoreMissing
	case s.view.Position().Zoom == 0:
		outcome = RestoreZeroZoom
	case !coverage.IsZero() && !coverage.Contains(s.view.Position().Center):
		outcome = RestoreOutOfBounds
	}

	if outcome == RestoreLoaded {
		pos := s.view.Position()
		slog.Info("Restored map view", "lat", pos.Center.Lat, "lon", pos.Center.Lon, "zoom", pos.Zoom)
		return outcome
	}

	home := s.engine.Home()
	slog.Info("No usable saved view, starting at home", "reason", outcome, "lat", home.Lat, "lon", home.Lon)
	s.AddFix(location.Fix{Lat: home.Lat, Lon: home.Lon, Source: "home"})
	return outcome
}

// Save persists the current view.
func (s *State) Save(ctx context.Context, st store.StateStore) error {
	return s.view.SavePosition(ctx, st)
}

// Resize records the map size in pixels and reframes when it changed.
func (s *State) Resize(d geo.Dimension) bool {
	if !s.view.SetDimensions(d) {
		return false
	}
	slog.Debug("Map resized", "width", d.Width, "height", d.Height)
	s.engine.Trigger()
	return true
}

// Clear drops the history.
func (s *State) Clear() {
	s.hist.Clear()
	s.course.Reset()
	s.metrics.SetHistorySize(0)
}

// Tile is a slippy-map tile address.
type Tile struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z int    `json:"z"`
}

// DebugInfo backs the debug overlay.
type DebugInfo struct {
	View        viewport.Position `json:"view"`
	Dimensions  geo.Dimension     `json:"dimensions"`
	TileSize    int               `json:"tile_size"`
	Home        geo.Point         `json:"home"`
	LastFix     *location.Fix     `json:"last_fix,omitempty"`
	Tile        *Tile             `json:"tile,omitempty"`
	Cell        string            `json:"h3_cell,omitempty"`
	DistanceM   float64           `json:"distance_from_home_m,omitempty"`
	Course      *float64          `json:"course_deg,omitempty"`
	HistorySize int               `json:"history_size"`
	Policy      string            `json:"policy"`
	LastPass    *focus.Result     `json:"last_pass,omitempty"`
	Passes      focus.Stats       `json:"passes"`
}

// Debug collects the overlay data.
func (s *State) Debug() DebugInfo {
	pos := s.view.Position()
	info := DebugInfo{
		View:        pos,
		Dimensions:  s.view.Dimensions(),
		TileSize:    s.view.TileSize(),
		Home:        s.engine.Home(),
		HistorySize: s.hist.Len(),
		Policy:      s.engine.Policy().Name(),
		Passes:      s.engine.Stats(),
	}
	if res, ok := s.engine.Last(); ok {
		info.LastPass = &res
	}

	fix, ok := s.LastFix()
	if !ok {
		return info
	}
	info.LastFix = &fix
	p := geo.Point{Lat: fix.Lat, Lon: fix.Lon}
	t := geo.TileAt(p, pos.Zoom)
	info.Tile = &Tile{X: t.X, Y: t.Y, Z: int(t.Z)}
	info.DistanceM = geo.Distance(info.Home, p)
	if deg, ok := s.course.Bearing(); ok {
		info.Course = &deg
	}
	if cell, err := geo.CellAt(p, s.h3Res); err == nil {
		info.Cell = cell
	} else {
		logging.TraceDefault("No H3 cell for fix", "error", err)
	}
	return info
}

// HistoryGeoJSON exports the history newest first as point features plus the
// track as a line when there are at least two fixes.
func (s *State) HistoryGeoJSON() *geojson.FeatureCollection {
	entries := s.hist.Entries()
	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0, len(entries))
	for i, e := range entries {
		pt := orb.Point{e.Fix.Lon, e.Fix.Lat}
		line = append(line, pt)

		f := geojson.NewFeature(pt)
		f.Properties["order"] = i
		f.Properties["millis"] = e.Millis
		f.Properties["time"] = time.UnixMilli(e.Millis).UTC().Format(time.RFC3339Nano)
		fc.Append(f)
	}
	if len(line) > 1 {
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "track"
		fc.Append(f)
	}
	return fc
}
