package metrics

import (
	"github.com/marmos91/opcuad/pkg/subscription"
)

// NewSubscriptionMetrics returns the Prometheus subscription.Metrics, or
// nil when metrics are not enabled. A nil result disables collection in
// the subscription engine.
func NewSubscriptionMetrics() subscription.Metrics {
	if !IsEnabled() || newPrometheusSubscriptionMetrics == nil {
		return nil
	}
	return newPrometheusSubscriptionMetrics()
}

var newPrometheusSubscriptionMetrics func() subscription.Metrics

// RegisterSubscriptionMetricsConstructor registers the Prometheus
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterSubscriptionMetricsConstructor(constructor func() subscription.Metrics) {
	newPrometheusSubscriptionMetrics = constructor
}
