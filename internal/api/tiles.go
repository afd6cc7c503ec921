package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"carnav/pkg/metrics"
	"carnav/pkg/tiles"
)

// TileHandler serves /tiles/{z}/{x}/{y} from the configured map source.
type TileHandler struct {
	provider tiles.Provider
	metrics  *metrics.Metrics
}

// NewTileHandler creates a new TileHandler. m may be nil.
func NewTileHandler(p tiles.Provider, m *metrics.Metrics) *TileHandler {
	return &TileHandler{provider: p, metrics: m}
}

// parseTileAddress accepts an optional extension on y ("7.png").
func parseTileAddress(zs, xs, ys string) (z, x, y int, ok bool) {
	ys, _, _ = strings.Cut(ys, ".")
	var err1, err2, err3 error
	z, err1 = strconv.Atoi(zs)
	x, err2 = strconv.Atoi(xs)
	y, err3 = strconv.Atoi(ys)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return z, x, y, tiles.ValidAddress(z, x, y)
}

func (h *TileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z, x, y, ok := parseTileAddress(r.PathValue("z"), r.PathValue("x"), r.PathValue("y"))
	if !ok {
		h.metrics.TileRequest("invalid")
		http.Error(w, "invalid tile address", http.StatusBadRequest)
		return
	}

	t, err := h.provider.Tile(r.Context(), z, x, y)
	switch {
	case err == nil:
	case errors.Is(err, tiles.ErrTileNotFound):
		h.metrics.TileRequest("not_found")
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	case r.Context().Err() != nil:
		return
	default:
		h.metrics.TileRequest("error")
		slog.Warn("Tile lookup failed", "source", h.provider.Name(), "z", z, "x", x, "y", y, "error", err)
		http.Error(w, "tile unavailable", http.StatusBadGateway)
		return
	}

	h.metrics.TileRequest("ok")
	ct := t.ContentType
	if ct == "" {
		ct = http.DetectContentType(t.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if strings.HasPrefix(ct, "application/x-protobuf") && len(t.Data) > 1 && t.Data[0] == 0x1f && t.Data[1] == 0x8b {
		w.Header().Set("Content-Encoding", "gzip")
	}
	_, _ = w.Write(t.Data)
}
