package api

import (
	"encoding/json"
	"net/http"

	"carnav/pkg/geo"
	"carnav/pkg/nav"
	"carnav/pkg/viewport"
)

// ViewportHandler serves the map view model.
type ViewportHandler struct {
	state *nav.State
}

// NewViewportHandler creates a new ViewportHandler.
func NewViewportHandler(s *nav.State) *ViewportHandler {
	return &ViewportHandler{state: s}
}

// ViewportResponse is what the page needs to build the map.
type ViewportResponse struct {
	View       viewport.Position `json:"view"`
	Dimensions geo.Dimension     `json:"dimensions"`
	TileSize   int               `json:"tile_size"`
	ZoomMin    int               `json:"zoom_min"`
	ZoomMax    int               `json:"zoom_max"`
	Home       geo.Point         `json:"home"`
}

// HandleGet returns the current view.
func (h *ViewportHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v := h.state.Viewport()
	lo, hi := v.ZoomRange()
	writeJSON(w, http.StatusOK, ViewportResponse{
		View:       v.Position(),
		Dimensions: v.Dimensions(),
		TileSize:   v.TileSize(),
		ZoomMin:    lo,
		ZoomMax:    hi,
		Home:       h.state.Engine().Home(),
	})
}

// HandleDimensions records the map size. A changed size reframes the view.
func (h *ViewportHandler) HandleDimensions(w http.ResponseWriter, r *http.Request) {
	var d geo.Dimension
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !d.Valid() {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	changed := h.state.Resize(d)
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"view":    h.state.Viewport().Position(),
	})
}
