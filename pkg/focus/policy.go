package focus

import (
	"fmt"
	"time"

	"carnav/pkg/config"
	"carnav/pkg/geo"
	"carnav/pkg/history"
)

// Boundary is the pair of points a pass frames. T1 is history.NotFound
// when P1 is synthetic.
type Boundary struct {
	P0        history.Fix `json:"p0"`
	T0        int64       `json:"t0"`
	P1        history.Fix `json:"p1"`
	T1        int64       `json:"t1"`
	Synthetic bool        `json:"synthetic"`
}

// Pruner is the subset of the history a policy may mutate.
type Pruner interface {
	RemoveOlderThan(t int64) int
	RetainSince(t int64, keep ...history.Fix) int
}

// Policy selects the second boundary point and decides what to prune.
type Policy interface {
	Name() string
	// Select receives a non-empty snapshot ordered newest timestamp first.
	Select(entries []history.Entry) Boundary
	Prune(h Pruner, b Boundary) int
}

// AgeWindow frames the newest fix together with the most recent fix that is
// older than Threshold, then forgets everything older than that fix.
type AgeWindow struct {
	Threshold time.Duration
	Delta     float64
}

func (AgeWindow) Name() string { return config.PolicyAgeWindow }

func (p AgeWindow) Select(entries []history.Entry) Boundary {
	p0 := entries[0]
	limit := p.Threshold.Milliseconds()
	for _, e := range entries[1:] {
		if p0.Millis-e.Millis > limit {
			return Boundary{P0: p0.Fix, T0: p0.Millis, P1: e.Fix, T1: e.Millis}
		}
	}
	return synthetic(p0, p.Delta)
}

func (AgeWindow) Prune(h Pruner, b Boundary) int {
	if b.Synthetic || b.T1 == history.NotFound {
		return 0
	}
	return h.RemoveOlderThan(b.T1)
}

// SecondRecent frames the two most recent fixes and keeps only those, plus
// anything recorded while the pass was running.
type SecondRecent struct {
	Delta float64
}

func (SecondRecent) Name() string { return config.PolicySecondRecent }

func (p SecondRecent) Select(entries []history.Entry) Boundary {
	p0 := entries[0]
	if len(entries) < 2 {
		return synthetic(p0, p.Delta)
	}
	p1 := entries[1]
	return Boundary{P0: p0.Fix, T0: p0.Millis, P1: p1.Fix, T1: p1.Millis}
}

func (SecondRecent) Prune(h Pruner, b Boundary) int {
	if b.Synthetic {
		return h.RetainSince(b.T0, b.P0)
	}
	return h.RetainSince(b.T0, b.P0, b.P1)
}

func synthetic(p0 history.Entry, delta float64) Boundary {
	return Boundary{
		P0:        p0.Fix,
		T0:        p0.Millis,
		P1:        history.Fix(geo.Point(p0.Fix).Offset(delta, delta)),
		T1:        history.NotFound,
		Synthetic: true,
	}
}

// NewPolicy builds the named policy from the focus config.
func NewPolicy(name string, cfg config.FocusConfig) (Policy, error) {
	switch name {
	case config.PolicyAgeWindow:
		return AgeWindow{Threshold: cfg.AgeThreshold.Std(), Delta: cfg.AgeWindowDelta}, nil
	case config.PolicySecondRecent:
		return SecondRecent{Delta: cfg.SecondRecentDelta}, nil
	default:
		return nil, fmt.Errorf("unknown focus policy %q", name)
	}
}
