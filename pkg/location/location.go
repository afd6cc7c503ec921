// Package location provides the sources that feed position fixes into the
// navigator: a gpsd client and a GPX track replay.
package location

import (
	"context"
	"log/slog"
	"time"

	"carnav/pkg/config"
)

// Fix is one reported position.
type Fix struct {
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
}

// Source delivers fixes on out until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Fix) error
}

// Option configures a source.
type Option func(*options)

type options struct {
	logger *slog.Logger
	onDrop func(Fix)
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the source logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDropHook is called for every fix dropped because out was full.
func WithDropHook(fn func(Fix)) Option {
	return func(o *options) { o.onDrop = fn }
}

// send never blocks. A full channel drops f.
func (o options) send(out chan<- Fix, f Fix) bool {
	select {
	case out <- f:
		return true
	default:
		o.logger.Warn("Fix dropped, consumer is behind", "source", f.Source, "lat", f.Lat, "lon", f.Lon)
		if o.onDrop != nil {
			o.onDrop(f)
		}
		return false
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NewSource builds the configured source. It returns nil for "none".
func NewSource(cfg config.GPSConfig, opts ...Option) Source {
	switch cfg.Source {
	case config.GPSSourceGPSD:
		return NewGPSD(cfg.GPSDAddr, opts...)
	case config.GPSSourceReplay:
		return NewReplay(cfg.Replay, opts...)
	default:
		return nil
	}
}
