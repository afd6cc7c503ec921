package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"carnav/pkg/geo"
	"carnav/pkg/logging"
	"carnav/pkg/metrics"
	"carnav/pkg/viewport"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 16
)

// ViewMessage is pushed to the page after every viewport change.
type ViewMessage struct {
	Type string `json:"type"` // "view"
	viewport.Update
}

// ClientMessage is what the page sends. Only "resize" is understood.
type ClientMessage struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub fans viewport updates out to every connected map page and feeds their
// size reports back into the navigator.
type Hub struct {
	view     *viewport.Model
	onResize func(geo.Dimension) bool
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
	stop    func()
}

// NewHub subscribes to view. onResize may be nil.
func NewHub(view *viewport.Model, onResize func(geo.Dimension) bool, m *metrics.Metrics) *Hub {
	h := &Hub{
		view:     view,
		onResize: onResize,
		metrics:  m,
		clients:  make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page is served by this process or loaded by the desktop shell.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	h.stop = view.Subscribe(h.broadcast)
	return h
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the view and disconnects every client.
func (h *Hub) Close() {
	h.stop()
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func encodeView(u viewport.Update) ([]byte, error) {
	return json.Marshal(ViewMessage{Type: "view", Update: u})
}

// broadcast never blocks the focus pass. A client that is behind loses the
// update; the next one supersedes it anyway.
func (h *Hub) broadcast(u viewport.Update) {
	data, err := encodeView(u)
	if err != nil {
		slog.Error("Failed to encode view update", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.TraceDefault("Websocket client behind, update dropped", "client", c.id, "seq", u.Seq)
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	if data, err := encodeView(h.view.Current()); err == nil {
		c.send <- data
	}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WSClientDelta(1)
	slog.Info("Map client connected", "client", c.id, "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	n = len(h.clients)
	h.mu.Unlock()
	close(c.done)
	_ = conn.Close()
	h.metrics.WSClientDelta(-1)
	slog.Info("Map client disconnected", "client", c.id, "clients", n)
}

func (h *Hub) readPump(c *wsClient) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.TraceDefault("Websocket message ignored", "client", c.id, "error", err)
			continue
		}
		switch msg.Type {
		case "resize":
			if h.onResize != nil {
				h.onResize(geo.Dimension{Width: msg.Width, Height: msg.Height})
			}
		default:
			logging.TraceDefault("Websocket message ignored", "client", c.id, "type", msg.Type)
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
