package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry bundles the node metrics with their Prometheus registry.
type Registry struct {
	prometheusRegistry *prometheus.Registry

	// Metrics holds the core node metrics, pre-registered.
	Metrics *Metrics
}

// NewRegistry creates a registry with the core node metrics and the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
	}

	for _, c := range r.Metrics.Collectors() {
		r.prometheusRegistry.MustRegister(c)
	}
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register adds a component-specific collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.prometheusRegistry.Register(c)
}
