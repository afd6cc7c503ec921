package api

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"carnav/pkg/focus"
	"carnav/pkg/location"
	"carnav/pkg/nav"
	"carnav/pkg/tiles"
	"carnav/pkg/tracker"
)

// GPSStatusReporter is implemented by the gpsd source.
type GPSStatusReporter interface {
	Status() location.GPSDStatus
}

type StatsHandler struct {
	tracker  *tracker.Tracker
	state    *nav.State
	hub      *Hub
	gps      GPSStatusReporter
	provider tiles.Provider
	started  time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a new StatsHandler. hub, gps and provider may be nil.
func NewStatsHandler(t *tracker.Tracker, s *nav.State, hub *Hub, gps GPSStatusReporter, p tiles.Provider) *StatsHandler {
	return &StatsHandler{
		tracker:  t,
		state:    s,
		hub:      hub,
		gps:      gps,
		provider: p,
		started:  time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Fetched     int64 `json:"fetched"`
	NotFound    int64 `json:"not_found"`
	Failures    int64 `json:"failures"`
	HitRate     int64 `json:"hit_rate"`
}

type ProcessStats struct {
	MemoryMB    uint64  `json:"memory_mb"`
	MemoryMaxMB uint64  `json:"memory_max_mb"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   float64 `json:"uptime_sec"`
}

type NavStats struct {
	HistorySize int         `json:"history_size"`
	Policy      string      `json:"policy"`
	Passes      focus.Stats `json:"passes"`
	Clients     int         `json:"clients"`
}

type StatsResponse struct {
	Diagnostics ProcessStats                `json:"diagnostics"`
	Nav         NavStats                    `json:"nav"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
	GPS         *location.GPSDStatus        `json:"gps,omitempty"`
	TileCache   *tiles.CacheInfo            `json:"tile_cache,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Nav: NavStats{
			HistorySize: h.state.History().Len(),
			Policy:      h.state.Engine().Policy().Name(),
			Passes:      h.state.Engine().Stats(),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}
	if h.hub != nil {
		resp.Nav.Clients = h.hub.Clients()
	}
	if h.gps != nil {
		st := h.gps.Status()
		resp.GPS = &st
	}
	if h.provider != nil {
		if info, ok := tiles.Cache(h.provider); ok {
			resp.TileCache = &info
		}
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			Fetched:     stats.Fetched,
			NotFound:    stats.NotFound,
			Failures:    stats.Failures,
			HitRate:     hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherDiagnostics() ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	peak := h.maxMem
	h.mu.Unlock()

	return ProcessStats{
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(peak),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   time.Since(h.started).Seconds(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
