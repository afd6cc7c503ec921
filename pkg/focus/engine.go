// Package focus implements the auto-focus pass: from the recent fix history
// it derives a bounding box, fits it into the map viewport, moves the view to
// the home anchor at that zoom and prunes history that has aged out.
//
// Only one pass runs at a time. A pass that finds another one in progress
// returns ErrLockBusy without waiting; nothing is queued. A fix recorded
// while a pass runs is not part of that pass's snapshot, but it is never
// pruned by it either, so the next pass frames it.
package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"carnav/pkg/core"
	"carnav/pkg/geo"
	"carnav/pkg/history"
	"carnav/pkg/logging"
)

var (
	// ErrHistoryEmpty means there was nothing to frame.
	ErrHistoryEmpty = errors.New("focus: history is empty")
	// ErrLockBusy means another pass holds the guard.
	ErrLockBusy = errors.New("focus: pass already running")
	// ErrUnexpected wraps a failure recovered from inside a pass.
	ErrUnexpected = errors.New("focus: unexpected failure")
)

// Pass outcomes, used as metric labels.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeBusy   = "busy"
	OutcomeFailed = "failed"
)

// Viewport is the part of the map view a pass reads and writes.
type Viewport interface {
	SetPosition(center geo.Point, zoom int, animate bool)
	Dimensions() geo.Dimension
	TileSize() int
	ZoomRange() (lo, hi int)
}

// Recorder receives pass metrics. It may be nil.
type Recorder interface {
	ObservePass(outcome string, zoom int, took time.Duration)
	ObservePruned(n int)
}

// Result describes a completed pass.
type Result struct {
	Boundary
	Policy    string          `json:"policy"`
	Box       geo.BoundingBox `json:"box"`
	Center    geo.Point       `json:"center"`
	Zoom      int             `json:"zoom"`
	Pruned    int             `json:"pruned"`
	Remaining int             `json:"remaining"`
	At        time.Time       `json:"at"`
	Took      time.Duration   `json:"took_ns"`
}

// Stats counts passes by outcome.
type Stats struct {
	OK     uint64 `json:"ok"`
	Empty  uint64 `json:"empty"`
	Busy   uint64 `json:"busy"`
	Failed uint64 `json:"failed"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// Engine runs focus passes over a history and a viewport.
type Engine struct {
	core.BaseJob

	hist   *history.History
	view   Viewport
	home   geo.Point
	logger *slog.Logger
	rec    Recorder

	mu      sync.RWMutex
	policy  Policy
	animate bool
	last    Result
	hasLast bool

	ok, empty, busy, failed atomic.Uint64
}

// NewEngine creates an engine that always centers on home.
func NewEngine(h *history.History, v Viewport, home geo.Point, p Policy, animate bool, opts ...Option) *Engine {
	e := &Engine{
		BaseJob: core.NewBaseJob("FocusPass"),
		hist:    h,
		view:    v,
		home:    home,
		policy:  p,
		animate: animate,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPolicy swaps the policy used by subsequent passes.
func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetAnimate toggles animated view changes.
func (e *Engine) SetAnimate(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.animate = on
}

// Home returns the anchor every pass centers on.
func (e *Engine) Home() geo.Point { return e.home }

// Recompute runs one pass. It never blocks on another pass.
func (e *Engine) Recompute(ctx context.Context) (res Result, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !e.TryLock() {
		e.busy.Add(1)
		e.observe(OutcomeBusy, 0, 0)
		return Result{}, ErrLockBusy
	}
	defer e.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
			res = Result{}
			e.logger.Error("Focus pass failed", "panic", r, "stack", string(debug.Stack()))
		}
		e.finish(&res, err, time.Since(start))
	}()

	return e.pass(start)
}

func (e *Engine) pass(start time.Time) (Result, error) {
	entries := e.hist.Entries()
	if len(entries) == 0 {
		return Result{}, ErrHistoryEmpty
	}
	// Entries are in reverse insertion order; a re-added fix is newest by
	// timestamp but keeps its old slot, so order by time without losing ties.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Millis > entries[j].Millis
	})

	e.mu.RLock()
	policy, animate := e.policy, e.animate
	e.mu.RUnlock()

	b := policy.Select(entries)
	box := geo.NewBoundingBox(geo.Point(b.P0), geo.Point(b.P1))

	lo, hi := e.view.ZoomRange()
	zoom := geo.ClampZoom(geo.ZoomForBounds(e.view.Dimensions(), box, e.view.TileSize()), lo, hi)

	e.view.SetPosition(e.home, zoom, animate)

	pruned := policy.Prune(e.hist, b)

	return Result{
		Boundary:  b,
		Policy:    policy.Name(),
		Box:       box,
		Center:    e.home,
		Zoom:      zoom,
		Pruned:    pruned,
		Remaining: e.hist.Len(),
		At:        start,
	}, nil
}

func (e *Engine) finish(res *Result, err error, took time.Duration) {
	switch {
	case err == nil:
		res.Took = took
		e.ok.Add(1)
		e.mu.Lock()
		e.last = *res
		e.hasLast = true
		e.mu.Unlock()
		e.observe(OutcomeOK, res.Zoom, took)
		if e.rec != nil {
			e.rec.ObservePruned(res.Pruned)
		}
		logging.Trace(e.logger, "Focus pass", "policy", res.Policy, "zoom", res.Zoom, "synthetic", res.Synthetic, "pruned", res.Pruned, "took", took)
	case errors.Is(err, ErrHistoryEmpty):
		e.empty.Add(1)
		e.observe(OutcomeEmpty, 0, took)
	default:
		e.failed.Add(1)
		e.observe(OutcomeFailed, 0, took)
	}
}

func (e *Engine) observe(outcome string, zoom int, took time.Duration) {
	if e.rec != nil {
		e.rec.ObservePass(outcome, zoom, took)
	}
}

// Trigger runs a pass and logs failures. It is the history observer.
func (e *Engine) Trigger() {
	_, err := e.Recompute(context.Background())
	switch {
	case err == nil, errors.Is(err, ErrHistoryEmpty):
	case errors.Is(err, ErrLockBusy):
		logging.Trace(e.logger, "Focus pass skipped, another pass is running")
	default:
		e.logger.Warn("Focus pass error", "error", err)
	}
}

// Last returns the most recent successful pass.
func (e *Engine) Last() (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.hasLast
}

// Stats returns pass counters.
func (e *Engine) Stats() Stats {
	return Stats{
		OK:     e.ok.Load(),
		Empty:  e.empty.Load(),
		Busy:   e.busy.Load(),
		Failed: e.failed.Load(),
	}
}
