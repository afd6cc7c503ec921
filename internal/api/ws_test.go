package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carnav/pkg/geo"
	"carnav/pkg/metrics"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	// Through the middleware chain, as in production.
	srv := httptest.NewServer(LoggingMiddleware(RecoverMiddleware(h)))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) ViewMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg ViewMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PushesViewUpdates(t *testing.T) {
	s := newTestState(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(s.Viewport(), s.Resize, m)
	defer hub.Close()

	conn := dialHub(t, hub)

	first := readView(t, conn)
	assert.Equal(t, "view", first.Type)
	assert.Equal(t, s.Viewport().Current().Seq, first.Seq, "current view on connect")

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSClients))

	s.Viewport().SetPosition(testHome, 12, true)
	msg := readView(t, conn)
	assert.Equal(t, 12, msg.Zoom)
	assert.True(t, msg.Animate)
	assert.Equal(t, testHome, msg.Center)
	assert.Greater(t, msg.Seq, first.Seq)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.WSClients) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Resize(t *testing.T) {
	s := newTestState(t)
	resized := make(chan geo.Dimension, 4)
	hub := NewHub(s.Viewport(), func(d geo.Dimension) bool {
		resized <- d
		return s.Resize(d)
	}, nil)
	defer hub.Close()

	conn := dialHub(t, hub)
	readView(t, conn)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "hello"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "resize", Width: 800, Height: 600}))

	select {
	case d := <-resized:
		assert.Equal(t, geo.Dimension{Width: 800, Height: 600}, d)
	case <-time.After(2 * time.Second):
		t.Fatal("resize never reported")
	}
	assert.Eventually(t, func() bool {
		return s.Viewport().Dimensions() == geo.Dimension{Width: 800, Height: 600}
	}, time.Second, 10*time.Millisecond)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	s := newTestState(t)
	hub := NewHub(s.Viewport(), nil, nil)
	defer hub.Close()

	dialHub(t, hub)
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// Never read: the send buffer fills up and further updates are dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < wsSendBuffer*20; i++ {
			s.Viewport().SetPosition(testHome, i%18, false)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetPosition blocked on a slow client")
	}
}
