// Package metrics holds the metrics interfaces of the server and the
// process-wide Prometheus registry.
//
// Implementations live in pkg/metrics/prometheus and register their
// constructors at init. Constructors here return nil until InitRegistry
// has been called, and nil metrics cost nothing.
//
// Example usage:
//
//	metrics.InitRegistry()
//	serviceMetrics := metrics.NewServiceMetrics()
//	srv := server.New(cfg, serviceMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process registry with the Go runtime and
// process collectors. Calling it again keeps the existing registry.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// resetRegistry drops the registry. Tests only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
