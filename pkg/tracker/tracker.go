// Package tracker counts tile traffic per map source.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per source.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*counters
}

type counters struct {
	hits, misses, fetched, failures, notFound atomic.Int64
}

// SourceStats is a snapshot for one source.
type SourceStats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Fetched     int64 `json:"fetched"`
	Failures    int64 `json:"failures"`
	NotFound    int64 `json:"not_found"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*counters),
	}
}

func (t *Tracker) get(source string) *counters {
	t.mu.RLock()
	c, ok := t.stats[source]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.stats[source]; ok {
		return c
	}
	c = &counters{}
	t.stats[source] = c
	return c
}

func (t *Tracker) TrackCacheHit(source string)  { t.get(source).hits.Add(1) }
func (t *Tracker) TrackCacheMiss(source string) { t.get(source).misses.Add(1) }
func (t *Tracker) TrackFetched(source string)   { t.get(source).fetched.Add(1) }
func (t *Tracker) TrackFailure(source string)   { t.get(source).failures.Add(1) }
func (t *Tracker) TrackNotFound(source string)  { t.get(source).notFound.Add(1) }

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]SourceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]SourceStats, len(t.stats))
	for k, c := range t.stats {
		out[k] = SourceStats{
			CacheHits:   c.hits.Load(),
			CacheMisses: c.misses.Load(),
			Fetched:     c.fetched.Load(),
			Failures:    c.failures.Load(),
			NotFound:    c.notFound.Load(),
		}
	}
	return out
}
