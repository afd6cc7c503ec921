// Package viewport holds the map view model: the center/zoom the map should
// show, the pixel size of the map widget and the tile pyramid it renders.
//
// The model is the only thing the focus pass writes to. Renderers (the
// websocket hub, the desktop shell) subscribe and apply updates on their own
// threads.
package viewport

import (
	"log/slog"
	"sync"

	"carnav/pkg/geo"
)

// Position is a map center plus zoom level.
type Position struct {
	Center geo.Point `json:"center"`
	Zoom   int       `json:"zoom"`
}

// Update is delivered to subscribers after every SetPosition.
type Update struct {
	Position
	Animate bool   `json:"animate"`
	Seq     uint64 `json:"seq"`
}

// Options configures a Model.
type Options struct {
	TileSize   int
	ZoomMin    int
	ZoomMax    int
	Dimensions geo.Dimension
	Initial    Position
}

// Model is safe for concurrent use.
type Model struct {
	mu       sync.RWMutex
	pos      Position
	dim      geo.Dimension
	tileSize int
	zoomMin  int
	zoomMax  int
	seq      uint64

	lmu       sync.RWMutex
	listeners map[int]func(Update)
	nextID    int
}

// New creates a model. A non-positive tile size defaults to 256.
func New(opts Options) *Model {
	if opts.TileSize <= 0 {
		opts.TileSize = 256
	}
	if opts.ZoomMax < opts.ZoomMin {
		opts.ZoomMax = opts.ZoomMin
	}
	m := &Model{
		dim:       opts.Dimensions,
		tileSize:  opts.TileSize,
		zoomMin:   opts.ZoomMin,
		zoomMax:   opts.ZoomMax,
		listeners: make(map[int]func(Update)),
	}
	m.pos = Position{Center: opts.Initial.Center, Zoom: geo.ClampZoom(opts.Initial.Zoom, m.zoomMin, m.zoomMax)}
	return m
}

// SetPosition moves the view. zoom is clamped to the zoom range.
// Subscribers are called synchronously after the lock is released.
func (m *Model) SetPosition(center geo.Point, zoom int, animate bool) {
	m.mu.Lock()
	m.pos = Position{Center: center, Zoom: geo.ClampZoom(zoom, m.zoomMin, m.zoomMax)}
	m.seq++
	u := Update{Position: m.pos, Animate: animate, Seq: m.seq}
	m.mu.Unlock()

	slog.Debug("Viewport moved", "lat", center.Lat, "lon", center.Lon, "zoom", u.Zoom, "animate", animate)
	m.publish(u)
}

// Position returns the current view.
func (m *Model) Position() Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pos
}

// Current returns the current view as an Update, for late subscribers.
func (m *Model) Current() Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Update{Position: m.pos, Seq: m.seq}
}

// Dimensions returns the map size in pixels.
func (m *Model) Dimensions() geo.Dimension {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

// SetDimensions records a new map size. Non-positive sizes are ignored
// (a minimised window reports 0x0).
func (m *Model) SetDimensions(d geo.Dimension) bool {
	if !d.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == d {
		return false
	}
	m.dim = d
	return true
}

// TileSize returns the tile edge in pixels.
func (m *Model) TileSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tileSize
}

// ZoomRange returns the inclusive zoom limits.
func (m *Model) ZoomRange() (lo, hi int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zoomMin, m.zoomMax
}

// Subscribe registers fn for future updates and returns a cancel func.
func (m *Model) Subscribe(fn func(Update)) (cancel func()) {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lmu.Lock()
			delete(m.listeners, id)
			m.lmu.Unlock()
		})
	}
}

func (m *Model) publish(u Update) {
	m.lmu.RLock()
	fns := make([]func(Update), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}
