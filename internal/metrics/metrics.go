package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerateRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casi_generate_requests_total",
		Help: "Generate requests by detected intent",
	}, []string{"intent"})

	GenerateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "casi_generate_duration_seconds",
		Help:    "End-to-end response generation latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
	})

	Fallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casi_fallback_responses_total",
		Help: "Responses served from the generic fallback",
	})

	Degradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casi_degradations_total",
		Help: "Collaborator calls that returned a degraded value, by component",
	}, []string{"component"})

	Absorbed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casi_patterns_absorbed_total",
		Help: "Patterns written back by the learning loop, by source",
	}, []string{"source"})

	Pruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casi_patterns_pruned_total",
		Help: "Patterns deleted by the pruner, by reason",
	}, []string{"reason"})

	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casi_votes_total",
		Help: "Feedback votes applied, by direction",
	}, []string{"direction"})

	CachePatterns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "casi_cache_patterns",
		Help: "Patterns held in the retrieval cache",
	})
)

// Degraded counts one degraded call for component.
func Degraded(component string) {
	Degradations.WithLabelValues(component).Inc()
}
