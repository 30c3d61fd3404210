package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the session lifecycle.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// CreatedTotal counts sessions created.
	CreatedTotal prometheus.Counter

	// ClosedTotal counts terminated sessions, labeled by reason.
	// Reason values: "client_request", "admin", "timeout", "shutdown".
	ClosedTotal *prometheus.CounterVec

	// ActivationsTotal counts ActivateSession calls, labeled by result.
	ActivationsTotal *prometheus.CounterVec

	// ActiveGauge tracks sessions not yet terminated.
	ActiveGauge prometheus.Gauge

	// ContinuationPointsEvicted counts continuation points dropped to
	// keep a session's store within its bound.
	ContinuationPointsEvicted prometheus.Counter

	// DurationHistogram observes session lifetimes in seconds.
	DurationHistogram prometheus.Histogram
}

// NewMetrics creates and registers session metrics with reg. If reg is nil,
// metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		}),
		ClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Total number of sessions terminated",
		}, []string{"reason"}),
		ActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "activations_total",
			Help:      "Total number of ActivateSession calls",
		}, []string{"result"}),
		ActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of sessions not yet terminated",
		}),
		ContinuationPointsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "continuation_points_evicted_total",
			Help:      "Browse continuation points evicted from full stores",
		}),
		DurationHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opcuad",
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Lifetime of sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 20), // 1s to ~145 hours
		}),
	}

	if reg != nil {
		m.CreatedTotal = registerOrReuse(reg, m.CreatedTotal).(prometheus.Counter)
		m.ClosedTotal = registerOrReuse(reg, m.ClosedTotal).(*prometheus.CounterVec)
		m.ActivationsTotal = registerOrReuse(reg, m.ActivationsTotal).(*prometheus.CounterVec)
		m.ActiveGauge = registerOrReuse(reg, m.ActiveGauge).(prometheus.Gauge)
		m.ContinuationPointsEvicted = registerOrReuse(reg, m.ContinuationPointsEvicted).(prometheus.Counter)
		m.DurationHistogram = registerOrReuse(reg, m.DurationHistogram).(prometheus.Histogram)
	}

	return m
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor so a restarted server keeps exporting.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) recordCreated() {
	if m == nil {
		return
	}
	m.CreatedTotal.Inc()
	m.ActiveGauge.Inc()
}

func (m *Metrics) recordClosed(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ClosedTotal.WithLabelValues(reason).Inc()
	m.ActiveGauge.Dec()
	m.DurationHistogram.Observe(durationSeconds)
}

func (m *Metrics) recordActivation(result string) {
	if m == nil {
		return
	}
	m.ActivationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordEvicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ContinuationPointsEvicted.Add(float64(n))
}
