package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and ingestion Prometheus metrics.
var (
	SearchArmFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htsnav",
			Name:      "search_arm_failures_total",
			Help:      "Search arms that degraded to empty results",
		},
		[]string{"arm"}, // "dense" / "sparse"
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htsnav",
			Name:      "rerank_total",
			Help:      "Cross-encoder rerank attempts",
		},
		[]string{"status"}, // "success" / "degraded"
	)

	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htsnav",
			Name:      "ingest_chunks_total",
			Help:      "Chunks processed by the ingestion pipeline",
		},
		[]string{"outcome"}, // "inserted" / "duplicate" / "failed"
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchArmFailuresTotal)
	prometheus.MustRegister(RerankTotal)
	prometheus.MustRegister(IngestChunksTotal)
	retrievalMetricsRegistered = true
}
