package viewport

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carnav/pkg/config"
	"carnav/pkg/geo"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (m *memStore) GetState(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) SetState(_ context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func (m *memStore) DeleteState(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newModel() *Model {
	return New(Options{
		TileSize:   512,
		ZoomMin:    0,
		ZoomMax:    18,
		Dimensions: geo.Dimension{Width: 1024, Height: 768},
	})
}

func TestSetPosition_ClampsAndNotifies(t *testing.T) {
	m := newModel()

	var got []Update
	cancel := m.Subscribe(func(u Update) { got = append(got, u) })

	home := geo.Point{Lat: 31.19134, Lon: 121.44579}
	m.SetPosition(home, 25, true)
	m.SetPosition(home, 14, false)

	require.Len(t, got, 2)
	assert.Equal(t, 18, got[0].Zoom)
	assert.True(t, got[0].Animate)
	assert.Equal(t, 14, got[1].Zoom)
	assert.Greater(t, got[1].Seq, got[0].Seq)
	assert.Equal(t, Position{Center: home, Zoom: 14}, m.Position())

	cancel()
	cancel() // idempotent
	m.SetPosition(home, 10, false)
	assert.Len(t, got, 2, "cancelled subscriber must not be called")
}

func TestSubscriber_CanReadModel(t *testing.T) {
	m := newModel()
	var seen Position
	m.Subscribe(func(Update) { seen = m.Position() })
	m.SetPosition(geo.Point{Lat: 1, Lon: 2}, 5, false)
	assert.Equal(t, 5, seen.Zoom)
}

func TestSetDimensions(t *testing.T) {
	m := newModel()

	assert.False(t, m.SetDimensions(geo.Dimension{Width: 0, Height: 0}))
	assert.Equal(t, geo.Dimension{Width: 1024, Height: 768}, m.Dimensions())

	assert.True(t, m.SetDimensions(geo.Dimension{Width: 800, Height: 600}))
	assert.False(t, m.SetDimensions(geo.Dimension{Width: 800, Height: 600}), "unchanged size")
	assert.Equal(t, geo.Dimension{Width: 800, Height: 600}, m.Dimensions())
}

func TestDefaults(t *testing.T) {
	m := New(Options{ZoomMin: 5, ZoomMax: 3})
	assert.Equal(t, 256, m.TileSize())
	lo, hi := m.ZoomRange()
	assert.Equal(t, 5, lo)
	assert.Equal(t, 5, hi)
	assert.Equal(t, 5, m.Position().Zoom)
}

func TestSaveAndLoadPosition(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()

	m := newModel()
	m.SetPosition(geo.Point{Lat: 31.19134, Lon: 121.44579}, 15, false)
	require.NoError(t, m.SavePosition(ctx, st))
	assert.Equal(t, "15", st.data[config.KeyViewZoom])

	restored := newModel()
	calls := 0
	restored.Subscribe(func(Update) { calls++ })
	require.True(t, restored.LoadPosition(ctx, st))
	assert.Equal(t, m.Position(), restored.Position())
	assert.Equal(t, 0, calls, "restore must not notify")
}

func TestLoadPosition_Missing(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	m := newModel()

	assert.False(t, m.LoadPosition(ctx, st))

	st.data[config.KeyViewLat] = "not-a-number"
	st.data[config.KeyViewLon] = "121"
	st.data[config.KeyViewZoom] = "3"
	assert.False(t, m.LoadPosition(ctx, st))

	st.data[config.KeyViewLat] = "95"
	assert.False(t, m.LoadPosition(ctx, st), "latitude out of range")
	assert.Equal(t, Position{}, m.Position())
}
