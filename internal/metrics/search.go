package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search engine and recommendation metrics.
var (
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration including query embedding",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Searches by outcome",
		},
		[]string{"status"}, // "ok" / "not_ready" / "error"
	)

	IndexBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Duration of a full index build",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Variants in the published index snapshot",
		},
	)

	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation requests by outcome",
		},
		[]string{"status"},
	)

	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Chat completion tokens consumed",
		},
		[]string{"model", "type"},
	)
)

var searchOnce sync.Once

// RegisterSearchMetrics registers search, index and recommendation metrics. Safe to call more than once.
func RegisterSearchMetrics() {
	searchOnce.Do(func() {
		prometheus.MustRegister(
			SearchDuration,
			SearchTotal,
			IndexBuildDuration,
			IndexDocuments,
			RecommendationsTotal,
			CompletionTokensTotal,
		)
	})
}
