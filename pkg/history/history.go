// Package history keeps the ordered, timestamped record of GPS fixes that the
// focus pass works on.
//
// Entries are keyed by exact coordinate. Re-adding a coordinate that is
// already present overwrites its timestamp but keeps its original position in
// insertion order. Reads return snapshots; callers never observe a partially
// pruned history.
package history

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"carnav/pkg/geo"
)

// NotFound is returned as the previous timestamp for a fix that was not yet
// in the history, and is used as "unknown" boundary timestamp by callers.
const NotFound int64 = -1

// Fix is a position key. Identical coordinates collapse into one entry.
type Fix struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the fix can be used as a map key.
func (f Fix) Valid() bool {
	return geo.Point(f).Valid()
}

// Entry is a fix together with the time it was last observed.
type Entry struct {
	Fix    Fix   `json:"fix"`
	Millis int64 `json:"millis"`
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a History.
type Option func(*History)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(h *History) {
		h.now = c
	}
}

// History is safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	order  []Fix // insertion order, oldest first
	stamps map[Fix]int64
	now    Clock
	last   int64

	obsMu    sync.RWMutex
	observer func()
}

// New creates an empty history.
func New(opts ...Option) *History {
	h := &History{
		stamps: make(map[Fix]int64),
		now:    time.Now,
		last:   math.MinInt64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetObserver registers fn to be called after every successful AddFix.
// fn runs on the caller's goroutine with no history lock held.
func (h *History) SetObserver(fn func()) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.observer = fn
}

// AddFix records (lat, lon) at the current time. It returns the previous
// timestamp of that coordinate and whether it was present.
func (h *History) AddFix(lat, lon float64) (prev int64, found bool) {
	f := Fix{Lat: lat, Lon: lon}
	if !f.Valid() {
		slog.Warn("Ignoring invalid fix", "lat", lat, "lon", lon)
		return NotFound, false
	}

	h.mu.Lock()
	ts := h.stamp()
	prev, found = h.stamps[f]
	if !found {
		h.order = append(h.order, f)
		prev = NotFound
	}
	h.stamps[f] = ts
	h.mu.Unlock()

	h.notify()
	return prev, found
}

// stamp issues a non-decreasing millisecond timestamp. Caller holds mu.
func (h *History) stamp() int64 {
	ts := h.now().UnixMilli()
	if ts < h.last {
		ts = h.last
	}
	h.last = ts
	return ts
}

func (h *History) notify() {
	h.obsMu.RLock()
	fn := h.observer
	h.obsMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// OrderedMostRecentFirst returns the fixes in reverse insertion order.
func (h *History) OrderedMostRecentFirst() []Fix {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Fix, len(h.order))
	for i, f := range h.order {
		out[len(h.order)-1-i] = f
	}
	return out
}

// Entries returns fixes with timestamps in reverse insertion order.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.order))
	for i, f := range h.order {
		out[len(h.order)-1-i] = Entry{Fix: f, Millis: h.stamps[f]}
	}
	return out
}

// TimestampOf returns the last observation time of f.
func (h *History) TimestampOf(f Fix) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ts, ok := h.stamps[f]
	if !ok {
		return NotFound, false
	}
	return ts, true
}

// Len returns the number of distinct fixes.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Remove deletes f. It reports whether f was present.
func (h *History) Remove(f Fix) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.stamps[f]; !ok {
		return false
	}
	delete(h.stamps, f)
	for i, o := range h.order {
		if o == f {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear drops every entry. The timestamp floor is kept.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.stamps = make(map[Fix]int64)
}

// RemoveOlderThan deletes every entry observed strictly before t and returns
// how many were removed.
func (h *History) RemoveOlderThan(t int64) int {
	return h.filter(func(f Fix, ts int64) bool { return ts >= t })
}

// RetainOnly deletes every entry not listed in keep.
func (h *History) RetainOnly(keep ...Fix) int {
	set := make(map[Fix]struct{}, len(keep))
	for _, f := range keep {
		set[f] = struct{}{}
	}
	return h.filter(func(f Fix, _ int64) bool {
		_, ok := set[f]
		return ok
	})
}

// RetainSince deletes every entry not listed in keep that was observed
// before t. Entries stamped at or after t survive whatever keep says.
func (h *History) RetainSince(t int64, keep ...Fix) int {
	set := make(map[Fix]struct{}, len(keep))
	for _, f := range keep {
		set[f] = struct{}{}
	}
	return h.filter(func(f Fix, ts int64) bool {
		if ts >= t {
			return true
		}
		_, ok := set[f]
		return ok
	})
}

// filter keeps entries for which keep returns true, preserving order.
func (h *History) filter(keep func(Fix, int64) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.order[:0]
	removed := 0
	for _, f := range h.order {
		if keep(f, h.stamps[f]) {
			kept = append(kept, f)
			continue
		}
		delete(h.stamps, f)
		removed++
	}
	// Zero the tail so dropped fixes are not retained by the backing array.
	for i := len(kept); i < len(h.order); i++ {
		h.order[i] = Fix{}
	}
	h.order = kept
	return removed
}
