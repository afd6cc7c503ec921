package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"carnav/internal/ui"
	"carnav/pkg/version"
)

// Handlers groups everything the server routes to. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Nav      *NavHandler
	Viewport *ViewportHandler
	Config   *ConfigHandler
	Stats    *StatsHandler
	Tiles    *TileHandler
	Hub      *Hub
	Metrics  http.Handler
}

// NewServer creates and configures the HTTP server.
// shutdown is called (asynchronously) from POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Navigator
	if h.Nav != nil {
		mux.HandleFunc("POST /api/fix", h.Nav.HandleFix)
		mux.HandleFunc("GET /api/history", h.Nav.HandleHistory)
		mux.HandleFunc("DELETE /api/history", h.Nav.HandleClearHistory)
		mux.HandleFunc("GET /api/debug", h.Nav.HandleDebug)
		mux.HandleFunc("POST /api/focus", h.Nav.HandleFocus)
	}

	// 4. Viewport
	if h.Viewport != nil {
		mux.HandleFunc("GET /api/viewport", h.Viewport.HandleGet)
		mux.HandleFunc("PUT /api/viewport/dimensions", h.Viewport.HandleDimensions)
	}
	if h.Hub != nil {
		mux.Handle("GET /ws", h.Hub)
	}

	// 5. Config, stats, logs
	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/tail", handleLogTail)

	// 6. Map tiles
	if h.Tiles != nil {
		mux.Handle("GET /tiles/{z}/{x}/{y}", h.Tiles)
	}

	// 7. Prometheus
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// 8. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 9. Static Frontend Serving (SPA)
	distFS, err := fs.Sub(ui.DistFS, "dist")
	if err != nil {
		panic(fmt.Sprintf("Failed to subtree dist from embedded assets: %v", err))
	}

	spaFS := &spaFileSystem{root: http.FS(distFS)}
	mux.Handle("/", http.FileServer(spaFS))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Listen opens the server socket. maxConns > 0 caps concurrent connections.
func Listen(ctx context.Context, addr string, maxConns int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// Serve runs srv on ln until ctx is done or quit fires, then shuts down
// gracefully.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, quit <-chan struct{}) error {
	slog.Info("Starting server", "addr", ln.Addr().String())
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"build":   version.String(),
	})
}
