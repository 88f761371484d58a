package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/store"
	"github.com/resync-ops/resync/internal/telemetry"
)

// legFanout is how much wider than the final top-k each leg searches.
// Fusion sees a deeper pool than it returns, so a chunk ranked just
// outside the top-k by one leg can still win on the combined score.
const legFanout = 4

// Options tunes a Retriever beyond its required dependencies.
type Options struct {
	// TopK is the final result count. Zero means 20.
	TopK int

	// Gate configures when the rerank pass runs.
	Gate RerankGate

	// EnableRerank turns the rerank pass on.
	EnableRerank bool

	// Recorder receives one event per retrieval. Nil disables recording.
	Recorder *telemetry.RetrievalRecorder
}

// Retriever runs hybrid retrieval over one collection: both legs in
// parallel, weighted fusion, gated rerank.
type Retriever struct {
	vs         store.VectorStore
	bm25       *store.BM25Index
	embedder   embed.Embedder
	classifier *Classifier
	reranker   Reranker
	collection string

	topK     int
	gate     RerankGate
	rerankOn bool
	recorder *telemetry.RetrievalRecorder
}

// NewRetriever wires a retriever. A nil reranker is replaced with the
// no-op reranker.
func NewRetriever(vs store.VectorStore, bm25 *store.BM25Index, embedder embed.Embedder, classifier *Classifier, reranker Reranker, collection string, opts Options) *Retriever {
	if reranker == nil {
		reranker = NoOpReranker{}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 20
	}
	gate := opts.Gate
	if gate.MaxCandidates == 0 && gate.LowScore == 0 && gate.Margin == 0 {
		gate = DefaultRerankGate()
	}
	return &Retriever{
		vs:         vs,
		bm25:       bm25,
		embedder:   embedder,
		classifier: classifier,
		reranker:   reranker,
		collection: collection,
		topK:       topK,
		gate:       gate,
		rerankOn:   opts.EnableRerank,
		recorder:   opts.Recorder,
	}
}

// Retrieve answers a query. One failed leg degrades to the surviving
// leg; both legs failing is an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters store.Filters) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("query must not be empty", nil)
	}

	start := time.Now()
	class, weights, cached := r.classifier.Classify(query)
	kInit := legFanout * r.topK

	var (
		vecResults []store.SearchResult
		keyResults []store.BM25Hit
		vecErr     error
		keyErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := r.embedder.Embed(gctx, query)
		if err != nil {
			vecErr = err
			return nil
		}
		vecResults, vecErr = r.vs.Search(gctx, r.collection, vec, kInit, filters)
		return nil
	})
	g.Go(func() error {
		keyResults, keyErr = r.bm25.Search(gctx, query, kInit)
		return nil
	})
	_ = g.Wait()

	mode := "hybrid"
	switch {
	case vecErr != nil && keyErr != nil:
		return nil, errors.NewQueryError("both retrieval legs failed", vecErr)
	case vecErr != nil:
		mode = "keyword_only"
		slog.Warn("vector leg failed, degrading to keyword only", slog.Any("error", vecErr))
	case keyErr != nil:
		mode = "vector_only"
		slog.Warn("keyword leg failed, degrading to vector only", slog.Any("error", keyErr))
	}

	results := Fuse(vecResults, keyResults, weights, r.topK)

	resp := &Response{
		Query:    query,
		Class:    class,
		Results:  results,
		Degraded: mode != "hybrid",
	}

	if r.rerankOn && r.reranker.Available(ctx) && r.gate.ShouldRerank(results) {
		resp.Results = r.rerank(ctx, query, results)
		resp.Reranked = resp.Results[0].Reranked
	}

	resp.Elapsed = time.Since(start)
	if r.recorder != nil {
		r.recorder.Record(telemetry.RetrievalEvent{
			Query:       query,
			Class:       string(class),
			Mode:        mode,
			ResultCount: len(resp.Results),
			Latency:     resp.Elapsed,
			Reranked:    resp.Reranked,
			CacheHit:    cached,
		})
	}
	return resp, nil
}

// rerank runs the cross-encoder pass over the gated candidates. The
// reranked candidates replace the head of the result list; the tail
// keeps its fused order. A rerank failure keeps the fused order.
func (r *Retriever) rerank(ctx context.Context, query string, results []Result) []Result {
	candidates := r.gate.Candidates(results)
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	scored, err := r.reranker.Rerank(ctx, query, docs)
	if err != nil {
		slog.Warn("rerank failed, keeping fused order", slog.Any("error", err))
		return results
	}

	reordered := make([]Result, 0, len(results))
	for _, s := range scored {
		res := candidates[s.Index]
		res.Score = s.Score
		res.Reranked = true
		reordered = append(reordered, res)
	}
	reordered = append(reordered, results[len(candidates):]...)
	return reordered
}
