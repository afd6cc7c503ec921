package config

import (
	"context"
	"testing"
)

// MockStateStore implements store.StateStore for testing.
type MockStateStore struct {
	data map[string]string
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{data: make(map[string]string)}
}

func (m *MockStateStore) GetState(ctx context.Context, key string) (string, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *MockStateStore) SetState(ctx context.Context, key, val string) error {
	m.data[key] = val
	return nil
}

func (m *MockStateStore) DeleteState(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestUnifiedProvider(t *testing.T) {
	ctx := context.Background()
	baseCfg := DefaultConfig()
	baseCfg.Focus.Animate = true
	baseCfg.Debug.Overlay = false

	st := NewMockStateStore()
	p := NewProvider(baseCfg, st)

	t.Run("Defaults", func(t *testing.T) {
		if got := p.FocusPolicy(ctx); got != PolicyAgeWindow {
			t.Errorf("FocusPolicy = %q, want %q", got, PolicyAgeWindow)
		}
		if !p.Animate(ctx) {
			t.Error("Animate should default to config value true")
		}
		if p.DebugOverlay(ctx) {
			t.Error("DebugOverlay should default to config value false")
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		if err := p.SetFocusPolicy(ctx, PolicySecondRecent); err != nil {
			t.Fatal(err)
		}
		if err := p.SetAnimate(ctx, false); err != nil {
			t.Fatal(err)
		}
		if err := p.SetDebugOverlay(ctx, true); err != nil {
			t.Fatal(err)
		}

		if got := p.FocusPolicy(ctx); got != PolicySecondRecent {
			t.Errorf("FocusPolicy = %q, want %q", got, PolicySecondRecent)
		}
		if p.Animate(ctx) {
			t.Error("Animate override not applied")
		}
		if !p.DebugOverlay(ctx) {
			t.Error("DebugOverlay override not applied")
		}
		if st.data[KeyDebugOverlay] != "true" {
			t.Errorf("stored %s = %q", KeyDebugOverlay, st.data[KeyDebugOverlay])
		}
	})

	t.Run("InvalidStoredPolicy", func(t *testing.T) {
		st.data[KeyFocusPolicy] = "nearest_gas_station"
		if got := p.FocusPolicy(ctx); got != PolicyAgeWindow {
			t.Errorf("FocusPolicy = %q, want fallback %q", got, PolicyAgeWindow)
		}
	})

	t.Run("NilStore", func(t *testing.T) {
		np := NewProvider(baseCfg, nil)
		if err := np.SetDebugOverlay(ctx, true); err != nil {
			t.Errorf("SetDebugOverlay with nil store: %v", err)
		}
		if np.DebugOverlay(ctx) {
			t.Error("nil store must fall back to config")
		}
		if np.AppConfig() != baseCfg {
			t.Error("AppConfig should return base config")
		}
	})
}

func TestIsKnownKey(t *testing.T) {
	for _, k := range []string{KeyViewLat, KeyViewLon, KeyViewZoom, KeyDebugOverlay, KeyFocusPolicy, KeyFocusAnimate} {
		if !IsKnownKey(k) {
			t.Errorf("IsKnownKey(%q) = false", k)
		}
	}
	for _, k := range []string{"volume", ""} {
		if IsKnownKey(k) {
			t.Errorf("IsKnownKey(%q) = true", k)
		}
	}
}
