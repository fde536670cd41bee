package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the memory layer.
type Metrics struct {
	MessagesStored   prometheus.Counter
	MessagesDegraded prometheus.Counter
	MessagesEvicted  prometheus.Counter
	Searches         prometheus.Counter
	SearchDuration   prometheus.Histogram
	ContextFallbacks prometheus.Counter
}

// NewMetrics registers the memory instruments with reg. A nil registerer
// gets a private registry so instrumentation is always safe to call.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "messages_stored_total",
			Help:      "Messages persisted with their embeddings.",
		}),
		MessagesDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "messages_degraded_total",
			Help:      "Messages skipped because the embedding service was unavailable.",
		}),
		MessagesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "messages_evicted_total",
			Help:      "Messages removed by tier policy enforcement.",
		}),
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "searches_total",
			Help:      "Semantic search requests.",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "search_duration_seconds",
			Help:      "Semantic search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ContextFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "memory",
			Name:      "context_fallbacks_total",
			Help:      "Context compositions that fell back to recency-only.",
		}),
	}
}
