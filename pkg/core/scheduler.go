package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler polls its jobs on a fixed tick and runs those that are due.
type Scheduler struct {
	tick time.Duration

	mu   sync.Mutex
	jobs []Job
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler; tick defaults to one second.
func NewScheduler(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{tick: tick}
}

// AddJob registers a job. Safe to call while running.
func (s *Scheduler) AddJob(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Start blocks until ctx is cancelled, then waits for in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.Info("Scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			s.fire(ctx, now)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, now time.Time) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		if !j.ShouldFire(now) {
			continue
		}
		s.wg.Add(1)
		go func(j Job) {
			defer s.wg.Done()
			j.Run(ctx)
		}(j)
	}
}
