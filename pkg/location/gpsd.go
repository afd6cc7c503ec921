package location

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"carnav/pkg/logging"
)

// DefaultGPSDAddr is where gpsd listens unless configured otherwise.
const DefaultGPSDAddr = "127.0.0.1:2947"

const (
	gpsdMinBackoff = 250 * time.Millisecond
	gpsdMaxBackoff = 10 * time.Second
	gpsdWatch      = "?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"
)

type gpsdMsgBase struct {
	Class string `json:"class"`
}

// TPV is the gpsd time-position-velocity report. Absent fields stay nil.
type TPV struct {
	Class string   `json:"class"`
	Mode  *int     `json:"mode,omitempty"`
	Time  string   `json:"time,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Speed *float64 `json:"speed,omitempty"`
	Track *float64 `json:"track,omitempty"`
}

// GPSDStatus is a snapshot of the client state.
type GPSDStatus struct {
	Addr      string    `json:"addr"`
	Connected bool      `json:"connected"`
	Mode      int       `json:"mode"`
	LastFix   time.Time `json:"last_fix,omitzero"`
	Fixes     uint64    `json:"fixes"`
	Dropped   uint64    `json:"dropped"`
	LastError string    `json:"last_error,omitempty"`
}

// GPSD streams TPV reports from a gpsd daemon and reconnects on failure.
type GPSD struct {
	addr string
	opts options

	mu     sync.Mutex
	status GPSDStatus
}

// NewGPSD creates a client for addr (host:port).
func NewGPSD(addr string, opts ...Option) *GPSD {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{
		addr:   addr,
		opts:   buildOptions(opts),
		status: GPSDStatus{Addr: addr},
	}
}

func (g *GPSD) Name() string { return "gpsd" }

// Status returns the current client state.
func (g *GPSD) Status() GPSDStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Run connects, watches and reconnects with exponential backoff until ctx is
// cancelled.
func (g *GPSD) Run(ctx context.Context, out chan<- Fix) error {
	g.opts.logger.Info("GPS source started", "source", "gpsd", "addr", g.addr)
	backoff := gpsdMinBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		d := &net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", g.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			g.setError(fmt.Errorf("gpsd dial failed addr=%s: %w", g.addr, err))
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, gpsdMaxBackoff)
			continue
		}

		backoff = gpsdMinBackoff
		g.setConnected(true)
		err = g.session(ctx, conn, out)
		g.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		g.setError(err)
	}
}

func (g *GPSD) session(ctx context.Context, conn net.Conn, out chan<- Fix) error {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte(gpsdWatch)); err != nil {
		return fmt.Errorf("gpsd watch failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, mode, ok, err := ParseTPV(line, time.Now().UTC())
		if err != nil {
			logging.Trace(g.opts.logger, "gpsd line skipped", "error", err)
			continue
		}
		if mode > 0 {
			g.mu.Lock()
			g.status.Mode = mode
			g.mu.Unlock()
		}
		if !ok {
			continue
		}
		sent := g.opts.send(out, fix)
		g.mu.Lock()
		if sent {
			g.status.Fixes++
			g.status.LastFix = fix.Time
		} else {
			g.status.Dropped++
		}
		g.mu.Unlock()
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	return fmt.Errorf("gpsd read stopped: %w", err)
}

func (g *GPSD) setConnected(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status.Connected = on
	if on {
		g.status.LastError = ""
	}
}

func (g *GPSD) setError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	g.mu.Lock()
	changed := g.status.LastError != err.Error()
	g.status.LastError = err.Error()
	g.mu.Unlock()
	if changed {
		g.opts.logger.Warn("gpsd connection problem", "error", err)
	}
}

// ParseTPV decodes one gpsd JSON line. mode is the reported fix mode (0 when
// absent or not a TPV). ok is true only for a 2D or 3D fix carrying lat/lon.
func ParseTPV(line string, now time.Time) (fix Fix, mode int, ok bool, err error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return Fix{}, 0, false, fmt.Errorf("gpsd json parse failed: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(base.Class), "TPV") {
		return Fix{}, 0, false, nil
	}

	var tpv TPV
	if err := json.Unmarshal([]byte(line), &tpv); err != nil {
		return Fix{}, 0, false, fmt.Errorf("gpsd tpv parse failed: %w", err)
	}
	if tpv.Mode != nil {
		mode = *tpv.Mode
	}
	if mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return Fix{}, mode, false, nil
	}

	ts := now
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tpv.Time)); err == nil {
		ts = t.UTC()
	}
	return Fix{Lat: *tpv.Lat, Lon: *tpv.Lon, Time: ts, Source: "gpsd"}, mode, true, nil
}

// EncodeTPV renders f as a 3D-fix TPV line, newline terminated.
func EncodeTPV(f Fix) []byte {
	mode := 3
	lat, lon := f.Lat, f.Lon
	tpv := TPV{
		Class: "TPV",
		Mode:  &mode,
		Time:  f.Time.UTC().Format(time.RFC3339Nano),
		Lat:   &lat,
		Lon:   &lon,
	}
	b, _ := json.Marshal(tpv)
	return append(b, '\n')
}
