package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"carnav/pkg/config"
)

// ErrEmptyTrack is returned when a GPX file has no track points.
var ErrEmptyTrack = errors.New("gpx file has no track points")

// TrackPoint is a recorded position with its original timestamp (may be zero).
type TrackPoint struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// LoadTrack reads all track points of a GPX file in file order.
func LoadTrack(path string) ([]TrackPoint, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file: %w", err)
	}
	return trackPoints(g)
}

// ParseTrack is LoadTrack for in-memory GPX data.
func ParseTrack(data []byte) ([]TrackPoint, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX data: %w", err)
	}
	return trackPoints(g)
}

func trackPoints(g *gpx.GPX) ([]TrackPoint, error) {
	var pts []TrackPoint
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				pts = append(pts, TrackPoint{Lat: p.Latitude, Lon: p.Longitude, Time: p.Timestamp})
			}
		}
	}
	if len(pts) == 0 {
		return nil, ErrEmptyTrack
	}
	return pts, nil
}

// Delay is the wall-clock wait before emitting next after prev. Recorded
// timestamps are scaled by speed; missing or non-increasing ones fall back to
// fallback.
func Delay(prev, next TrackPoint, speed float64, fallback time.Duration) time.Duration {
	if prev.Time.IsZero() || next.Time.IsZero() || !next.Time.After(prev.Time) {
		return fallback
	}
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(next.Time.Sub(prev.Time)) / speed)
}

// Replay plays a GPX track back as live fixes.
type Replay struct {
	cfg  config.ReplayConfig
	opts options
}

// NewReplay creates a replay source.
func NewReplay(cfg config.ReplayConfig, opts ...Option) *Replay {
	return &Replay{cfg: cfg, opts: buildOptions(opts)}
}

func (r *Replay) Name() string { return "replay" }

// Run emits the track, stamped with the current time, until it ends (or
// forever when looping) or ctx is cancelled.
func (r *Replay) Run(ctx context.Context, out chan<- Fix) error {
	pts, err := LoadTrack(r.cfg.File)
	if err != nil {
		return err
	}
	r.opts.logger.Info("GPS source started", "source", "replay", "file", r.cfg.File, "points", len(pts), "speed", r.cfg.Speed, "loop", r.cfg.Loop)
	return r.play(ctx, pts, out)
}

func (r *Replay) play(ctx context.Context, pts []TrackPoint, out chan<- Fix) error {
	interval := r.cfg.Interval.Std()
	if interval <= 0 {
		interval = time.Second
	}
	for {
		for i, p := range pts {
			if i > 0 && !sleep(ctx, Delay(pts[i-1], p, r.cfg.Speed, interval)) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			r.opts.send(out, Fix{Lat: p.Lat, Lon: p.Lon, Time: time.Now().UTC(), Source: "replay"})
		}
		if !r.cfg.Loop {
			return nil
		}
		if !sleep(ctx, interval) {
			return nil
		}
	}
}
