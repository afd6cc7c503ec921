package request

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ServerBackoff holds off requests to a tile server that keeps failing or
// asks us to slow down. Servers are keyed by normalized host.
type ServerBackoff struct {
	base time.Duration
	max  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	servers map[string]*BackoffState
}

// BackoffState is the hold-off for one server.
type BackoffState struct {
	Failures int       `json:"failures"`
	Until    time.Time `json:"until,omitzero"`
}

// NewServerBackoff creates a backoff that doubles from base up to max.
func NewServerBackoff(base, max time.Duration) *ServerBackoff {
	return &ServerBackoff{
		base:    base,
		max:     max,
		now:     time.Now,
		servers: make(map[string]*BackoffState),
	}
}

// Wait blocks until server may be contacted again or ctx ends.
func (b *ServerBackoff) Wait(ctx context.Context, server string) error {
	b.mu.Lock()
	var until time.Time
	if s, ok := b.servers[server]; ok {
		until = s.Until
	}
	b.mu.Unlock()

	d := until.Sub(b.now())
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failure records a failed request. A positive hint (from Retry-After)
// replaces the computed delay, capped at max.
func (b *ServerBackoff) Failure(server string, hint time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.servers[server]
	if !ok {
		s = &BackoffState{}
		b.servers[server] = s
	}
	s.Failures++

	d := hint
	if d <= 0 {
		d = b.delay(s.Failures)
	}
	d = min(d, b.max)
	s.Until = b.now().Add(d)
	return d
}

// Success lets one failure heal. The hold-off clears with the last one.
func (b *ServerBackoff) Success(server string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.servers[server]
	if !ok {
		return
	}
	s.Failures--
	if s.Failures <= 0 {
		delete(b.servers, server)
	}
}

// delay is base * 2^(failures-1), capped, plus up to 10% jitter.
func (b *ServerBackoff) delay(failures int) time.Duration {
	d := b.base
	for i := 1; i < failures && d < b.max; i++ {
		d *= 2
	}
	d = min(d, b.max)
	if d > 0 {
		d += time.Duration(rand.Int64N(int64(d)/10 + 1))
	}
	return d
}

// State returns the hold-off for server; zero when healthy.
func (b *ServerBackoff) State(server string) BackoffState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.servers[server]; ok {
		return *s
	}
	return BackoffState{}
}

// Snapshot returns every server currently backed off.
func (b *ServerBackoff) Snapshot() map[string]BackoffState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]BackoffState, len(b.servers))
	for k, s := range b.servers {
		out[k] = *s
	}
	return out
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
