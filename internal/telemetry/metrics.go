// Package telemetry collects retrieval and ingestion metrics.
// Prometheus collectors expose operational counters; the retrieval
// recorder keeps an in-memory view for the stats command. No data
// leaves the process unless a scrape endpoint is wired up.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a Resync instance.
type Metrics struct {
	// Ingestion
	IngestChunksTotal   prometheus.Counter
	IngestDedupHits     prometheus.Counter
	IngestBytesEmbedded prometheus.Counter
	EmbedDuration       prometheus.Histogram
	UpsertDuration      prometheus.Histogram

	// Retrieval
	RetrievalTotal    *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	RerankTotal       prometheus.Counter

	// Coordination
	AuditPending prometheus.Gauge
	LocksActive  prometheus.Gauge

	// Agent
	IntentTotal     *prometheus.CounterVec
	DiagnosticTotal *prometheus.CounterVec
}

// NewMetrics registers collectors with reg and returns them.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total chunks written to the vector store.",
		}),
		IngestDedupHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "ingest",
			Name:      "dedup_hits_total",
			Help:      "Chunks skipped because their content hash already exists.",
		}),
		IngestBytesEmbedded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "ingest",
			Name:      "bytes_embedded_total",
			Help:      "Bytes of chunk text sent to the embedder.",
		}),
		EmbedDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resync",
			Subsystem: "ingest",
			Name:      "embed_duration_seconds",
			Help:      "Embedding batch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		UpsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resync",
			Subsystem: "ingest",
			Name:      "upsert_duration_seconds",
			Help:      "Vector store upsert batch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		RetrievalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Retrieval queries by mode.",
		}, []string{"mode"}),
		RetrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resync",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval leg latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"leg"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "retrieval",
			Name:      "cache_hits_total",
			Help:      "Query classification cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "retrieval",
			Name:      "cache_misses_total",
			Help:      "Query classification cache misses.",
		}),
		RerankTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "retrieval",
			Name:      "rerank_total",
			Help:      "Queries whose results went through the reranker.",
		}),
		AuditPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resync",
			Subsystem: "audit",
			Name:      "pending_actions",
			Help:      "Actions waiting for review in the audit queue.",
		}),
		LocksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resync",
			Subsystem: "locks",
			Name:      "active",
			Help:      "Distributed locks currently held.",
		}),
		IntentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "agent",
			Name:      "intents_total",
			Help:      "Classified intents by label.",
		}, []string{"intent"}),
		DiagnosticTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resync",
			Subsystem: "agent",
			Name:      "diagnostic_sessions_total",
			Help:      "Diagnostic sessions by terminal outcome.",
		}, []string{"outcome"}),
	}
}

// NopMetrics returns collectors bound to a throwaway registry.
// Callers that do not export metrics can still record without nil checks.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
