package core

import (
	"context"
	"sync/atomic"
	"time"
)

// Job is something the Scheduler polls. ShouldFire must be cheap; Run may
// block and is called on its own goroutine.
type Job interface {
	Name() string
	ShouldFire(now time.Time) bool
	Run(ctx context.Context)
}

// BaseJob is a named non-blocking mutex. Embed it to keep a job from
// overlapping itself.
type BaseJob struct {
	name string
	busy atomic.Bool
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock claims the job and reports whether it was free.
func (b *BaseJob) TryLock() bool {
	return b.busy.CompareAndSwap(false, true)
}

func (b *BaseJob) Unlock() {
	b.busy.Store(false)
}

func (b *BaseJob) Running() bool {
	return b.busy.Load()
}

// TimeJob runs action at most once per interval, and straight away on the
// first poll or after Kick.
type TimeJob struct {
	BaseJob
	interval time.Duration
	action   func(context.Context)

	// unix nanos of the last start; 0 means due now
	last atomic.Int64
	runs atomic.Int64
}

func NewTimeJob(name string, interval time.Duration, action func(context.Context)) *TimeJob {
	return &TimeJob{
		BaseJob:  NewBaseJob(name),
		interval: interval,
		action:   action,
	}
}

func (j *TimeJob) ShouldFire(now time.Time) bool {
	if j.Running() {
		return false
	}
	last := j.last.Load()
	return last == 0 || now.Sub(time.Unix(0, last)) >= j.interval
}

// Kick makes the job due on the next poll.
func (j *TimeJob) Kick() {
	j.last.Store(0)
}

// Runs is the number of completed actions.
func (j *TimeJob) Runs() int64 {
	return j.runs.Load()
}

func (j *TimeJob) Run(ctx context.Context) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.last.Store(time.Now().UnixNano())
	j.action(ctx)
	j.runs.Add(1)
}
