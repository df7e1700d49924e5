// Package metrics exposes movewatch counters to Prometheus. A nil *Metrics
// is valid and records nothing, so components can be built without one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter movewatch maintains.
type Metrics struct {
	reg *prometheus.Registry

	Passes           prometheus.Counter
	ExtractFailures  prometheus.Counter
	Suppressed       prometheus.Counter
	Dispatched       prometheus.Counter
	DispatchFailures prometheus.Counter
	DispatchDropped  prometheus.Counter
	Arms             prometheus.Counter
	Disarms          prometheus.Counter
	OverlayMounts    prometheus.Counter
	EngineLines      prometheus.Counter
	Plies            prometheus.Gauge
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Passes: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_extraction_passes_total",
			Help: "Extraction passes run against the move list",
		}),
		ExtractFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_extraction_failures_total",
			Help: "Extraction passes that could not read the move list",
		}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_gate_suppressed_total",
			Help: "Passes whose sequence equalled the published baseline",
		}),
		Dispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_dispatches_total",
			Help: "Move sequences handed to the sinks",
		}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_dispatch_failures_total",
			Help: "Sink deliveries that failed",
		}),
		DispatchDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_dispatch_dropped_total",
			Help: "Updates dropped because the dispatch queue was full",
		}),
		Arms: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_watcher_arms_total",
			Help: "Move list subscriptions created",
		}),
		Disarms: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_watcher_disarms_total",
			Help: "Move list subscriptions disposed",
		}),
		OverlayMounts: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_overlay_mounts_total",
			Help: "Overlay panels injected",
		}),
		EngineLines: f.NewCounter(prometheus.CounterOpts{
			Name: "movewatch_engine_lines_total",
			Help: "Engine analysis lines relayed into the panel",
		}),
		Plies: f.NewGauge(prometheus.GaugeOpts{
			Name: "movewatch_published_plies",
			Help: "Length of the last dispatched move sequence",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Pass()            { m.inc(func() prometheus.Counter { return m.Passes }) }
func (m *Metrics) ExtractFailure()  { m.inc(func() prometheus.Counter { return m.ExtractFailures }) }
func (m *Metrics) Suppress()        { m.inc(func() prometheus.Counter { return m.Suppressed }) }
func (m *Metrics) DispatchFailure() { m.inc(func() prometheus.Counter { return m.DispatchFailures }) }
func (m *Metrics) DispatchDrop()    { m.inc(func() prometheus.Counter { return m.DispatchDropped }) }
func (m *Metrics) Arm()             { m.inc(func() prometheus.Counter { return m.Arms }) }
func (m *Metrics) Disarm()          { m.inc(func() prometheus.Counter { return m.Disarms }) }
func (m *Metrics) OverlayMount()    { m.inc(func() prometheus.Counter { return m.OverlayMounts }) }
func (m *Metrics) EngineLine()      { m.inc(func() prometheus.Counter { return m.EngineLines }) }

// Dispatch counts one dispatched sequence of the given length.
func (m *Metrics) Dispatch(plies int) {
	if m == nil {
		return
	}
	m.Dispatched.Inc()
	m.Plies.Set(float64(plies))
}

func (m *Metrics) inc(pick func() prometheus.Counter) {
	if m != nil {
		pick().Inc()
	}
}
