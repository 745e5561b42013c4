// Package metric defines the Prometheus metrics for an HSP node and the
// HTTP server that exposes them.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all node-level metrics.
type Metrics struct {
	// Bridge and envelope flow
	MessagesReceived  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	AlignmentFailures *prometheus.CounterVec
	AcksSent          prometheus.Counter
	DispatchDuration  *prometheus.HistogramVec

	// Service discovery
	KnownCapabilities prometheus.Gauge
	StaleEvictions    prometheus.Counter

	// Learning pipeline
	FactsStored       prometheus.Counter
	FactsDiscarded    prometheus.Counter
	FactsCorroborated prometheus.Counter
	FactsShared       prometheus.Counter

	// Transport
	BrokerConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all node metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "bridge",
				Name:      "messages_received_total",
				Help:      "Inbound wire messages by message type",
			},
			[]string{"type"},
		),
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "bridge",
				Name:      "messages_published_total",
				Help:      "Outbound wire messages by message type",
			},
			[]string{"type"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "bridge",
				Name:      "messages_dropped_total",
				Help:      "Inbound messages dropped by reason (malformed_json, alignment, unmapped_type)",
			},
			[]string{"reason"},
		),
		AlignmentFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "aligner",
				Name:      "failures_total",
				Help:      "Alignment failures by structured error code",
			},
			[]string{"code"},
		),
		AcksSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "connector",
				Name:      "acks_sent_total",
				Help:      "Acknowledgement envelopes published",
			},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hsp",
				Subsystem: "connector",
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent dispatching an envelope to registered callbacks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		KnownCapabilities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hsp",
				Subsystem: "discovery",
				Name:      "known_capabilities",
				Help:      "Capability advertisements currently resident (stale or not)",
			},
		),
		StaleEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "discovery",
				Name:      "stale_evictions_total",
				Help:      "Capability advertisements removed by the staleness sweep",
			},
		),
		FactsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "learning",
				Name:      "facts_stored_total",
				Help:      "Facts that passed the quality gate and were stored",
			},
		),
		FactsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "learning",
				Name:      "facts_discarded_total",
				Help:      "Facts discarded by the quality gate",
			},
		),
		FactsCorroborated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "learning",
				Name:      "facts_corroborated_total",
				Help:      "Duplicate fact receipts folded into corroboration counters",
			},
		),
		FactsShared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hsp",
				Subsystem: "learning",
				Name:      "facts_shared_total",
				Help:      "Locally learned facts republished over HSP",
			},
		),
		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hsp",
				Subsystem: "transport",
				Name:      "broker_connected",
				Help:      "Broker connection state (1=connected, 0=not)",
			},
		),
	}
}

// Collectors returns every metric for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesPublished,
		m.MessagesDropped,
		m.AlignmentFailures,
		m.AcksSent,
		m.DispatchDuration,
		m.KnownCapabilities,
		m.StaleEvictions,
		m.FactsStored,
		m.FactsDiscarded,
		m.FactsCorroborated,
		m.FactsShared,
		m.BrokerConnected,
	}
}
