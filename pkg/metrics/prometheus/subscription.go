package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/opcuad/pkg/metrics"
	"github.com/marmos91/opcuad/pkg/subscription"
)

// subscriptionMetrics is the Prometheus implementation of
// subscription.Metrics. One instance is shared by every session's engine.
type subscriptionMetrics struct {
	queued        prometheus.Counter
	queueDepth    prometheus.Histogram
	rejected      prometheus.Counter
	expired       prometheus.Counter
	responses     *prometheus.CounterVec
	notifications prometheus.Histogram
	created       prometheus.Counter
	closed        *prometheus.CounterVec
	active        prometheus.Gauge
}

// NewSubscriptionMetrics creates subscription metrics on the process
// registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSubscriptionMetrics() subscription.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newSubscriptionMetrics(metrics.GetRegistry())
}

func newSubscriptionMetrics(reg prometheus.Registerer) *subscriptionMetrics {
	return &subscriptionMetrics{
		queued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "opcuad_publish_requests_queued_total",
			Help: "Publish requests accepted into a session queue",
		}),
		queueDepth: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "opcuad_publish_queue_depth",
			Help:    "Session publish queue depth observed after each enqueue",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		rejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "opcuad_publish_requests_rejected_total",
			Help: "Publish requests refused with BadTooManyPublishRequests",
		}),
		expired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "opcuad_publish_requests_expired_total",
			Help: "Publish requests answered with BadTimeout",
		}),
		responses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opcuad_publish_responses_total",
			Help: "Publish responses produced, by kind",
		}, []string{"kind"}), // "keep_alive", "data"
		notifications: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "opcuad_publish_notifications",
			Help:    "Notifications carried per data publish response",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
		created: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "opcuad_subscriptions_created_total",
			Help: "Subscriptions created",
		}),
		closed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opcuad_subscriptions_closed_total",
			Help: "Subscriptions removed, by reason",
		}, []string{"reason"}),
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "opcuad_subscriptions_active",
			Help: "Subscriptions currently alive",
		}),
	}
}

func (m *subscriptionMetrics) PublishRequestQueued(depth int) {
	if m == nil {
		return
	}
	m.queued.Inc()
	m.queueDepth.Observe(float64(depth))
}

func (m *subscriptionMetrics) PublishRequestRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *subscriptionMetrics) PublishRequestsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *subscriptionMetrics) PublishResponseSent(keepAlive bool, notifications int) {
	if m == nil {
		return
	}
	if keepAlive {
		m.responses.WithLabelValues("keep_alive").Inc()
		return
	}
	m.responses.WithLabelValues("data").Inc()
	m.notifications.Observe(float64(notifications))
}

func (m *subscriptionMetrics) SubscriptionCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
	m.active.Inc()
}

func (m *subscriptionMetrics) SubscriptionClosed(reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(reason).Inc()
	m.active.Dec()
}
