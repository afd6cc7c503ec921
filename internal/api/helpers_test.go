package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carnav/pkg/focus"
	"carnav/pkg/geo"
	"carnav/pkg/history"
	"carnav/pkg/nav"
	"carnav/pkg/store"
	"carnav/pkg/viewport"
)

var testHome = geo.Point{Lat: 31.191340, Lon: 121.445790}

func newTestState(t *testing.T) *nav.State {
	t.Helper()
	view := viewport.New(viewport.Options{
		TileSize:   256,
		ZoomMin:    0,
		ZoomMax:    18,
		Dimensions: geo.Dimension{Width: 1024, Height: 768},
	})
	h := history.New()
	e := focus.NewEngine(h, view, testHome, focus.AgeWindow{Threshold: time.Second, Delta: 0.02}, false)
	return nav.New(h, e, view)
}

// serve routes one request through the full server mux.
func serve(t *testing.T, h Handlers, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer("", h, func() {})
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

type mockStore struct {
	store.Store
	state map[string]string
}

func (m *mockStore) GetState(ctx context.Context, key string) (string, bool) {
	val, ok := m.state[key]
	return val, ok
}

func (m *mockStore) SetState(ctx context.Context, key, val string) error {
	if m.state == nil {
		m.state = make(map[string]string)
	}
	m.state[key] = val
	return nil
}

func (m *mockStore) DeleteState(ctx context.Context, key string) error {
	delete(m.state, key)
	return nil
}
