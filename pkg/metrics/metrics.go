// Package metrics exposes the navigator's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carnav"

// Metrics holds every collector. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	reg *prometheus.Registry

	FixesReceived *prometheus.CounterVec
	FixesDropped  *prometheus.CounterVec
	FocusPasses   *prometheus.CounterVec
	FocusDuration prometheus.Histogram
	FocusPruned   prometheus.Counter
	Zoom          prometheus.Gauge
	HistorySize   prometheus.Gauge
	WSClients     prometheus.Gauge
	TileRequests  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewMetrics(reg)
	m.reg = reg
	return m
}

// NewMetrics registers the navigator collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FixesReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "fixes_received_total",
			Help:      "Fixes accepted into the history, by source.",
		}, []string{"source"}),
		FixesDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "fixes_dropped_total",
			Help:      "Fixes dropped because the consumer was behind, by source.",
		}, []string{"source"}),
		FocusPasses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "focus",
			Name:      "passes_total",
			Help:      "Focus passes by outcome.",
		}, []string{"outcome"}),
		FocusDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "focus",
			Name:      "pass_duration_seconds",
			Help:      "Duration of completed focus passes.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		FocusPruned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "focus",
			Name:      "pruned_fixes_total",
			Help:      "History entries removed by focus passes.",
		}),
		Zoom: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewport",
			Name:      "zoom",
			Help:      "Zoom level chosen by the last focus pass.",
		}),
		HistorySize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "history_size",
			Help:      "Distinct fixes currently held in the history.",
		}),
		WSClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected map pages.",
		}),
		TileRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "requests_total",
			Help:      "Tile requests by result (hit, miss, not_found, error).",
		}, []string{"result"}),
	}
}

// Handler serves the registry built by New.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObservePass implements focus.Recorder.
func (m *Metrics) ObservePass(outcome string, zoom int, took time.Duration) {
	if m == nil {
		return
	}
	m.FocusPasses.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.FocusDuration.Observe(took.Seconds())
		m.Zoom.Set(float64(zoom))
	}
}

// ObservePruned implements focus.Recorder.
func (m *Metrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FocusPruned.Add(float64(n))
}

// FixReceived counts an accepted fix.
func (m *Metrics) FixReceived(source string) {
	if m == nil {
		return
	}
	m.FixesReceived.WithLabelValues(source).Inc()
}

// FixDropped counts a fix lost to a full channel.
func (m *Metrics) FixDropped(source string) {
	if m == nil {
		return
	}
	m.FixesDropped.WithLabelValues(source).Inc()
}

// SetHistorySize records the history length.
func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.HistorySize.Set(float64(n))
}

// WSClientDelta adjusts the websocket client gauge.
func (m *Metrics) WSClientDelta(d int) {
	if m == nil {
		return
	}
	m.WSClients.Add(float64(d))
}

// TileRequest counts a tile lookup by result.
func (m *Metrics) TileRequest(result string) {
	if m == nil {
		return
	}
	m.TileRequests.WithLabelValues(result).Inc()
}
