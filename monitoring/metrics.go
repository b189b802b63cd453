// Package monitoring registers the Prometheus metrics describing the
// health of the Scanner Loop and Callback Queue, mirroring dcrlnd's own
// "monitoring" subsystem: a private registry per Metrics set, a handful of
// gauges/histograms updated by whoever owns the measured state, and an
// http.Handler the daemon mounts wherever it likes.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every gauge/histogram exported by a running gateway. The
// zero value is not usable; construct with New.
type Metrics struct {
	registry *prometheus.Registry

	TickDuration        prometheus.Histogram
	TickErrors          prometheus.Counter
	InvoicesTracked     prometheus.Gauge
	CallbackQueueDepth  prometheus.Gauge
	ScanHeight          prometheus.Gauge
}

// New builds a Metrics set registered against a fresh, private
// prometheus.Registry (not the global DefaultRegisterer), so that multiple
// Gateways in the same process never collide on metric names.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xmrgateway",
			Subsystem: "scanner",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a single scanner tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmrgateway",
			Subsystem: "scanner",
			Name:      "tick_errors_total",
			Help:      "Count of ticks that returned an error.",
		}),
		InvoicesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xmrgateway",
			Name:      "invoices_tracked",
			Help:      "Number of invoices currently tracked (not yet removed).",
		}),
		CallbackQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xmrgateway",
			Subsystem: "callback",
			Name:      "queue_depth",
			Help:      "Number of callback deliveries currently buffered awaiting a worker.",
		}),
		ScanHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xmrgateway",
			Subsystem: "scanner",
			Name:      "height",
			Help:      "Most recently scanned block height.",
		}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.TickErrors,
		m.InvoicesTracked,
		m.CallbackQueueDepth,
		m.ScanHeight,
	)

	return m
}

// Registry returns the private prometheus.Registry backing m, for wiring
// into an httpapi server's /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records the duration of a completed tick and whether it
// returned an error (transient or fatal).
func (m *Metrics) ObserveTick(d time.Duration, err error) {
	m.TickDuration.Observe(d.Seconds())
	if err != nil {
		m.TickErrors.Inc()
	}
}
