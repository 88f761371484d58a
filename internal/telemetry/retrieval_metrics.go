package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// RetrievalEvent describes one completed retrieval for recording.
type RetrievalEvent struct {
	Query       string
	Class       string // EXACT_MATCH, SEMANTIC, MIXED, DEFAULT
	Mode        string // hybrid, vector_only, keyword_only
	ResultCount int
	Latency     time.Duration
	Reranked    bool
	CacheHit    bool // query classification came from cache
}

// IsZeroResult returns true if this retrieval returned nothing.
func (e RetrievalEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int // Current number of items
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		// Buffer full. Oldest item sits at head.
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// ExtractTerms extracts trackable terms from a query string.
// Terms are lowercased and filtered to minimum length 3 so that
// TWS tokens like AWSBHT061E, abend and rc=8 survive.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	words := strings.Fields(query)
	var terms []string
	for _, w := range words {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}

	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// RetrievalSnapshot is an immutable snapshot of retrieval metrics.
type RetrievalSnapshot struct {
	ClassCounts         map[string]int64        `json:"class_counts"`
	ModeCounts          map[string]int64        `json:"mode_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	RerankedCount       int64                   `json:"reranked_count"`
	CacheHitCount       int64                   `json:"cache_hit_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *RetrievalSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// CacheHitRate returns the classification cache hit rate in [0,1].
func (s *RetrievalSnapshot) CacheHitRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.CacheHitCount) / float64(s.TotalQueries)
}

// RetrievalRecorder collects retrieval telemetry in memory.
// Thread-safe for concurrent access.
type RetrievalRecorder struct {
	mu sync.RWMutex

	classCounts     map[string]int64
	modeCounts      map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	rerankedCount   int64
	cacheHitCount   int64
	startTime       time.Time

	prom *Metrics
}

// NewRetrievalRecorder creates a recorder that mirrors counts into prom.
// prom may be nil; the in-memory view still works.
func NewRetrievalRecorder(prom *Metrics) *RetrievalRecorder {
	topTerms, _ := lru.New[string, int64](100)
	return &RetrievalRecorder{
		classCounts: make(map[string]int64),
		modeCounts:  make(map[string]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](100),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
		prom:        prom,
	}
}

// Record captures metrics from a completed retrieval.
func (r *RetrievalRecorder) Record(event RetrievalEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.classCounts[event.Class]++
	r.modeCounts[event.Mode]++
	r.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := r.topTerms.Get(term)
		r.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		r.zeroResults.Add(event.Query)
		r.zeroResultCount++
	}
	if event.Reranked {
		r.rerankedCount++
	}
	if event.CacheHit {
		r.cacheHitCount++
	}

	r.latencies[LatencyToBucket(event.Latency)]++

	if r.prom != nil {
		r.prom.RetrievalTotal.WithLabelValues(event.Mode).Inc()
		if event.CacheHit {
			r.prom.CacheHitsTotal.Inc()
		} else {
			r.prom.CacheMissesTotal.Inc()
		}
		if event.Reranked {
			r.prom.RerankTotal.Inc()
		}
	}
}

// Snapshot returns current metrics for reporting.
func (r *RetrievalRecorder) Snapshot() *RetrievalSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classCounts := make(map[string]int64, len(r.classCounts))
	for k, v := range r.classCounts {
		classCounts[k] = v
	}
	modeCounts := make(map[string]int64, len(r.modeCounts))
	for k, v := range r.modeCounts {
		modeCounts[k] = v
	}

	var topTerms []TermCount
	for _, key := range r.topTerms.Keys() {
		if count, ok := r.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	// Sort by count descending. The list is at most 100 entries.
	for i := 0; i < len(topTerms); i++ {
		for j := i + 1; j < len(topTerms); j++ {
			if topTerms[j].Count > topTerms[i].Count {
				topTerms[i], topTerms[j] = topTerms[j], topTerms[i]
			}
		}
	}

	latencies := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		latencies[k] = v
	}

	return &RetrievalSnapshot{
		ClassCounts:         classCounts,
		ModeCounts:          modeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   r.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        r.totalQueries,
		ZeroResultCount:     r.zeroResultCount,
		RerankedCount:       r.rerankedCount,
		CacheHitCount:       r.cacheHitCount,
		Since:               r.startTime,
	}
}
