package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/store"
	"github.com/resync-ops/resync/internal/telemetry"
)

const retrieverDims = 64

// failingEmbedder breaks the vector leg on demand.
type failingEmbedder struct {
	embed.Embedder
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.NewIntegrationError("embedder", nil)
}

func newTestCorpus(t *testing.T, embedder embed.Embedder) *store.MemoryVectorStore {
	t.Helper()
	ctx := context.Background()
	vs := store.NewMemoryVectorStore(retrieverDims)

	docs := []struct {
		id, content string
		meta        store.ChunkMetadata
	}{
		{"restart", "How to restart AWSBH001 after an abend on CPU1",
			store.ChunkMetadata{JobNames: []string{"AWSBH001"}, DocType: "runbook"}},
		{"rc8", "Return code rc=8 means a dependency was not satisfied",
			store.ChunkMetadata{ErrorCodes: []string{"rc_8"}}},
		{"calendar", "Calendar maintenance is performed monthly by the scheduling team",
			store.ChunkMetadata{DocType: "reference"}},
	}

	var chunks []*store.Chunk
	for i, d := range docs {
		vec, err := embedder.Embed(ctx, d.content)
		require.NoError(t, err)
		chunks = append(chunks, &store.Chunk{
			DocumentID: d.id,
			ChunkID:    fmt.Sprintf("%s#0", d.id),
			Content:    d.content,
			Embedding:  vec,
			SHA256:     fmt.Sprintf("sha-%d", i),
			Metadata:   d.meta,
		})
	}
	require.NoError(t, vs.Upsert(ctx, "docs", chunks))
	return vs
}

func newTestRetriever(t *testing.T, embedder embed.Embedder, reranker Reranker, opts Options) *Retriever {
	t.Helper()
	seeder := embedder
	if _, ok := embedder.(failingEmbedder); ok {
		seeder = embed.NewStaticEmbedder(retrieverDims)
	}
	vs := newTestCorpus(t, seeder)
	bm25 := store.NewBM25Index(vs, "docs")
	classifier := NewClassifier(Weights{Vector: 0.6, Keyword: 0.4}, 0, 0)
	return NewRetriever(vs, bm25, embedder, classifier, reranker, "docs", opts)
}

func TestRetrieveHybrid(t *testing.T) {
	t.Parallel()

	embedder := embed.NewStaticEmbedder(retrieverDims)
	r := newTestRetriever(t, embedder, nil, Options{TopK: 3})

	resp, err := r.Retrieve(context.Background(), "How to restart AWSBH001 after an abend on CPU1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	assert.Equal(t, "restart#0", resp.Results[0].ChunkID)
	assert.Equal(t, ClassMixed, resp.Class)
	assert.False(t, resp.Degraded)
	assert.False(t, resp.Reranked)
}

func TestRetrieveDegradesWhenVectorLegFails(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, failingEmbedder{}, nil, Options{TopK: 3})

	resp, err := r.Retrieve(context.Background(), "rc=8 dependency", nil)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "rc8#0", resp.Results[0].ChunkID)
}

func TestRetrieveRerankGateTriggers(t *testing.T) {
	t.Parallel()

	embedder := embed.NewStaticEmbedder(retrieverDims)
	fake := llm.NewFake(`{"scores": [0.1, 0.95, 0.2]}`)
	r := newTestRetriever(t, embedder, NewLLMReranker(fake), Options{
		TopK:         3,
		EnableRerank: true,
		// Force the gate open regardless of fused confidence.
		Gate: RerankGate{LowScore: 1.1, Margin: 0.0, MaxCandidates: 10},
	})

	resp, err := r.Retrieve(context.Background(), "How to restart AWSBH001 after an abend on CPU1", nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Reranked)
	assert.True(t, resp.Results[0].Reranked)
	assert.InDelta(t, 0.95, resp.Results[0].Score, 1e-9)
	assert.Equal(t, 1, fake.CallCount())
}

func TestRetrieveRerankFailureKeepsFusedOrder(t *testing.T) {
	t.Parallel()

	embedder := embed.NewStaticEmbedder(retrieverDims)
	fake := llm.NewFake(`not json`)
	r := newTestRetriever(t, embedder, NewLLMReranker(fake), Options{
		TopK:         3,
		EnableRerank: true,
		Gate:         RerankGate{LowScore: 1.1, Margin: 0.0, MaxCandidates: 10},
	})

	resp, err := r.Retrieve(context.Background(), "How to restart AWSBH001 after an abend on CPU1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Reranked)
	assert.Equal(t, "restart#0", resp.Results[0].ChunkID)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	t.Parallel()

	embedder := embed.NewStaticEmbedder(retrieverDims)
	r := newTestRetriever(t, embedder, nil, Options{TopK: 3})

	_, err := r.Retrieve(context.Background(), "  ", nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRetrieveRecordsTelemetry(t *testing.T) {
	t.Parallel()

	recorder := telemetry.NewRetrievalRecorder(telemetry.NopMetrics())
	embedder := embed.NewStaticEmbedder(retrieverDims)
	r := newTestRetriever(t, embedder, nil, Options{TopK: 3, Recorder: recorder})

	_, err := r.Retrieve(context.Background(), "calendar maintenance schedule", nil)
	require.NoError(t, err)

	snap := recorder.Snapshot()
	assert.EqualValues(t, 1, snap.TotalQueries)
}
