// Package probe runs startup checks and decides whether startup may proceed.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CheckFunc returns nil if the check passes.
type CheckFunc func(ctx context.Context) error

// DefaultTimeout bounds a probe that sets no Timeout.
const DefaultTimeout = 5 * time.Second

// Probe represents a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup.
	Timeout  time.Duration
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Status is PASS, WARN (non-critical failure) or FAIL.
func (r Result) Status() string {
	switch {
	case r.Error == nil:
		return "PASS"
	case r.Probe.Critical:
		return "FAIL"
	default:
		return "WARN"
	}
}

// Run executes the probes concurrently, each under its own timeout.
// Results are in probe order.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeout := p.Timeout
			if timeout <= 0 {
				timeout = DefaultTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := p.Check(checkCtx)
			results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
		}()
	}
	wg.Wait()

	return results
}

// AnalyzeResults logs a summary and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary", "probes", len(results))
	for _, r := range results {
		msg := fmt.Sprintf("[%s] %-20s (%v)", r.Status(), r.Probe.Name, r.Duration.Round(time.Millisecond))
		switch r.Status() {
		case "PASS":
			slog.Info(msg)
		case "WARN":
			slog.Warn(msg, "error", r.Error)
		default:
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		}
	}

	return errors.Join(criticalErrors...)
}
