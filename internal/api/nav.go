package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"carnav/pkg/focus"
	"carnav/pkg/location"
	"carnav/pkg/nav"
)

// NavHandler exposes the navigator: manual fixes, history and focus passes.
type NavHandler struct {
	state *nav.State
}

// NewNavHandler creates a new NavHandler.
func NewNavHandler(s *nav.State) *NavHandler {
	return &NavHandler{state: s}
}

// FixRequest is the body of POST /api/fix.
type FixRequest struct {
	Lat  *float64  `json:"lat"`
	Lon  *float64  `json:"lon"`
	Time time.Time `json:"time,omitzero"`
}

// FixResponse acknowledges an accepted fix.
type FixResponse struct {
	HistorySize int `json:"history_size"`
	Zoom        int `json:"zoom"`
}

// HandleFix injects a fix as if a location source had reported it.
func (h *NavHandler) HandleFix(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req FixRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	if !h.state.AddFix(location.Fix{Lat: *req.Lat, Lon: *req.Lon, Time: req.Time, Source: "api"}) {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	writeJSON(w, http.StatusAccepted, FixResponse{
		HistorySize: h.state.History().Len(),
		Zoom:        h.state.Viewport().Position().Zoom,
	})
}

// HandleHistory returns the fix history as GeoJSON, newest first.
func (h *NavHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	data, err := h.state.HistoryGeoJSON().MarshalJSON()
	if err != nil {
		slog.Error("Failed to encode history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode history")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

// HandleClearHistory drops every stored fix.
func (h *NavHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	h.state.Clear()
	slog.Info("History cleared via API")
	w.WriteHeader(http.StatusNoContent)
}

// HandleDebug returns the overlay data.
func (h *NavHandler) HandleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Debug())
}

// HandleFocus runs a focus pass now.
func (h *NavHandler) HandleFocus(w http.ResponseWriter, r *http.Request) {
	res, err := h.state.Engine().Recompute(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, focus.ErrHistoryEmpty):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, focus.ErrLockBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("Focus pass failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
