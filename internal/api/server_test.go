package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carnav/pkg/metrics"
	"carnav/pkg/version"
)

func TestServer_Health(t *testing.T) {
	w := serve(t, Handlers{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServer_Version(t *testing.T) {
	w := serve(t, Handlers{}, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, version.Version, body["version"])
}

func TestServer_SPA(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"Root", "/", http.StatusOK},
		{"Client route", "/debug", http.StatusOK},
		{"Missing asset", "/assets/app.js", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, Handlers{}, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), "<title>carnav</title>")
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.FixReceived("api")
	w := serve(t, Handlers{Metrics: m.Handler()}, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `carnav_location_fixes_received_total{source="api"} 1`)
}

func TestServer_Shutdown(t *testing.T) {
	called := make(chan struct{})
	srv := NewServer("", Handlers{}, func() { close(called) })

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/shutdown", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown func never called")
	}
}

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := Listen(ctx, "127.0.0.1:0", 4)
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), Handlers{}, func() {})
	quit := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, ln, quit) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	close(quit)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestListen_AddressInUse(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0", 0)
	require.NoError(t, err)
	defer ln.Close()

	_, err = Listen(context.Background(), ln.Addr().String(), 0)
	assert.Error(t, err)
}
