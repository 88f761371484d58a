package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{200 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), "latency %v", tt.latency)
	}
}

func TestCircularBuffer_FIFOOrder(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	buf.Add(1)
	buf.Add(2)
	assert.Equal(t, []int{1, 2}, buf.Items())

	buf.Add(3)
	buf.Add(4) // evicts 1
	assert.Equal(t, []int{2, 3, 4}, buf.Items())
	assert.Equal(t, 3, buf.Size())

	buf.Clear()
	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestExtractTerms_FiltersShortWords(t *testing.T) {
	terms := ExtractTerms("Why is JOB_PAYROLL in rc 8 on CPU1?")
	assert.Contains(t, terms, "job_payroll")
	assert.Contains(t, terms, "cpu1?")
	assert.NotContains(t, terms, "is")
	assert.NotContains(t, terms, "8")

	assert.Nil(t, ExtractTerms("  "))
	assert.Nil(t, ExtractTerms("a b"))
}

func TestRetrievalRecorder_Record(t *testing.T) {
	rec := NewRetrievalRecorder(nil)

	rec.Record(RetrievalEvent{
		Query:       "AWSBHT061E job failed",
		Class:       "EXACT_MATCH",
		Mode:        "hybrid",
		ResultCount: 5,
		Latency:     20 * time.Millisecond,
		Reranked:    true,
		CacheHit:    false,
	})
	rec.Record(RetrievalEvent{
		Query:       "how does scheduling work",
		Class:       "SEMANTIC",
		Mode:        "hybrid",
		ResultCount: 0,
		Latency:     120 * time.Millisecond,
		CacheHit:    true,
	})

	snap := rec.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ClassCounts["EXACT_MATCH"])
	assert.Equal(t, int64(1), snap.ClassCounts["SEMANTIC"])
	assert.Equal(t, int64(2), snap.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"how does scheduling work"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.RerankedCount)
	assert.Equal(t, int64(1), snap.CacheHitCount)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP500])
	assert.InDelta(t, 50.0, snap.ZeroResultPercentage(), 1e-9)
	assert.InDelta(t, 0.5, snap.CacheHitRate(), 1e-9)
}

func TestRetrievalRecorder_TopTermsSorted(t *testing.T) {
	rec := NewRetrievalRecorder(nil)

	for i := 0; i < 3; i++ {
		rec.Record(RetrievalEvent{Query: "abend code", Class: "MIXED", Mode: "hybrid", ResultCount: 1})
	}
	rec.Record(RetrievalEvent{Query: "workstation offline", Class: "MIXED", Mode: "hybrid", ResultCount: 1})

	snap := rec.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "abend", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestRetrievalRecorder_MirrorsPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewMetrics(reg)
	rec := NewRetrievalRecorder(prom)

	rec.Record(RetrievalEvent{Query: "q", Class: "DEFAULT", Mode: "hybrid", ResultCount: 1, Reranked: true})
	rec.Record(RetrievalEvent{Query: "q", Class: "DEFAULT", Mode: "vector_only", ResultCount: 1, CacheHit: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.RetrievalTotal.WithLabelValues("hybrid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.RetrievalTotal.WithLabelValues("vector_only")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.RerankTotal))
}

func TestRetrievalRecorder_ConcurrentRecord(t *testing.T) {
	rec := NewRetrievalRecorder(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.Record(RetrievalEvent{
					Query:       fmt.Sprintf("query %d-%d", n, j),
					Class:       "DEFAULT",
					Mode:        "hybrid",
					ResultCount: 1,
				})
			}
		}(i)
	}
	wg.Wait()

	snap := rec.Snapshot()
	assert.Equal(t, int64(1000), snap.TotalQueries)
}

func TestNopMetrics_RecordsWithoutPanic(t *testing.T) {
	m := NopMetrics()
	m.IngestChunksTotal.Add(3)
	m.AuditPending.Set(2)
	m.IntentTotal.WithLabelValues("STATUS").Inc()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IngestChunksTotal))
}
