package metrics

import (
	"time"
)

// ServiceMetrics observes OPC UA service calls.
//
// Pass nil to disable collection with zero overhead.
type ServiceMetrics interface {
	// RecordRequest records a completed service call.
	//
	// Parameters:
	//   - service: Service name (e.g., "Read", "Browse", "Publish")
	//   - duration: Time taken to process the request
	//   - status: Service result name, empty when Good
	RecordRequest(service string, duration time.Duration, status string)

	// RecordRequestStart increments the in-flight gauge for service.
	RecordRequestStart(service string)

	// RecordRequestEnd decrements the in-flight gauge for service.
	RecordRequestEnd(service string)

	// RecordPublishDelivered counts publish responses handed to the
	// transport by the periodic driver.
	RecordPublishDelivered(n int)

	// RecordTick observes the duration of one driver tick.
	RecordTick(duration time.Duration)
}

// NewServiceMetrics returns the Prometheus ServiceMetrics, or nil when
// metrics are not enabled.
func NewServiceMetrics() ServiceMetrics {
	if !IsEnabled() || newPrometheusServiceMetrics == nil {
		return nil
	}
	return newPrometheusServiceMetrics()
}

// newPrometheusServiceMetrics is set by pkg/metrics/prometheus; the
// indirection avoids an import cycle.
var newPrometheusServiceMetrics func() ServiceMetrics

// RegisterServiceMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterServiceMetricsConstructor(constructor func() ServiceMetrics) {
	newPrometheusServiceMetrics = constructor
}

// ObserveRequest records a finished call on m. m may be nil.
func ObserveRequest(m ServiceMetrics, service string, start time.Time, status string) {
	if m == nil {
		return
	}
	m.RecordRequest(service, time.Since(start), status)
}
