package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"carnav/pkg/location"
)

const versionLine = `{"class":"VERSION","release":"3.25","rev":"fakegpsd","proto_major":3,"proto_minor":15}` + "\n"

// feeder streams one track to every client that asks for it.
type feeder struct {
	points   []location.TrackPoint
	speed    float64
	interval time.Duration
	loop     bool
}

// serve accepts clients until ctx is cancelled. ln is closed on return.
func (f *feeder) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handle(ctx, conn)
		}()
	}
}

func (f *feeder) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	slog.Info("Client connected", "remote", remote)

	if _, err := io.WriteString(conn, versionLine); err != nil {
		return
	}
	if !awaitWatch(conn) {
		slog.Info("Client left before ?WATCH", "remote", remote)
		return
	}

	n, err := f.stream(ctx, conn)
	slog.Info("Client disconnected", "remote", remote, "sent", n, "error", err)
}

// awaitWatch reads commands until one enables watching.
func awaitWatch(r io.Reader) bool {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "?WATCH") {
			return true
		}
	}
	return false
}

// stream writes the track as TPV lines, paced like the recording. It returns
// the number of reports written.
func (f *feeder) stream(ctx context.Context, w io.Writer) (int, error) {
	sent := 0
	for {
		for i, p := range f.points {
			if i > 0 && !wait(ctx, location.Delay(f.points[i-1], p, f.speed, f.interval)) {
				return sent, ctx.Err()
			}
			fix := location.Fix{Lat: p.Lat, Lon: p.Lon, Time: time.Now().UTC()}
			if _, err := w.Write(location.EncodeTPV(fix)); err != nil {
				return sent, err
			}
			sent++
		}
		if !f.loop {
			return sent, nil
		}
		if !wait(ctx, f.interval) {
			return sent, ctx.Err()
		}
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
