package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/store"
)

func vecResult(chunkID string, sim float64) store.SearchResult {
	return store.SearchResult{DocumentID: "doc", ChunkID: chunkID, Content: "content " + chunkID, Similarity: sim}
}

func keyHit(chunkID string, score float64) store.BM25Hit {
	return store.BM25Hit{DocumentID: "doc", ChunkID: chunkID, Content: "content " + chunkID, Score: score}
}

func TestFuseWeightedCombination(t *testing.T) {
	t.Parallel()

	vec := []store.SearchResult{vecResult("a", 0.9), vecResult("b", 0.5)}
	key := []store.BM25Hit{keyHit("b", 12.0), keyHit("a", 4.0)}

	// Normalized: vec a=1, b=0; key b=1, a=0.
	results := Fuse(vec, key, Weights{Vector: 0.8, Keyword: 0.2}, 10)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
	assert.InDelta(t, 0.2, results[1].Score, 1e-9)

	// Flipping the weights flips the order.
	results = Fuse(vec, key, Weights{Vector: 0.2, Keyword: 0.8}, 10)
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestFuseKeywordOnlyChunkKeepsContent(t *testing.T) {
	t.Parallel()

	vec := []store.SearchResult{vecResult("a", 0.9)}
	key := []store.BM25Hit{{
		DocumentID: "doc", ChunkID: "k", Content: "keyword only chunk",
		Metadata: store.ChunkMetadata{DocType: "runbook"}, Score: 3.0,
	}}

	results := Fuse(vec, key, Weights{Vector: 0.5, Keyword: 0.5}, 10)
	require.Len(t, results, 2)

	var found *Result
	for i := range results {
		if results[i].ChunkID == "k" {
			found = &results[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "keyword only chunk", found.Content)
	assert.Equal(t, "runbook", found.Metadata.DocType)
}

func TestFuseSingleLegNormalizesToOne(t *testing.T) {
	t.Parallel()

	vec := []store.SearchResult{vecResult("a", 0.42)}
	results := Fuse(vec, nil, Weights{Vector: 0.6, Keyword: 0.4}, 10)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-9)
	assert.InDelta(t, 0.6, results[0].Score, 1e-9)
}

func TestFuseEmptyLegs(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Fuse(nil, nil, Weights{Vector: 0.6, Keyword: 0.4}, 10))
}

func TestFuseLimit(t *testing.T) {
	t.Parallel()

	vec := []store.SearchResult{
		vecResult("a", 0.9), vecResult("b", 0.8), vecResult("c", 0.7),
	}
	results := Fuse(vec, nil, Weights{Vector: 1, Keyword: 0}, 2)
	assert.Len(t, results, 2)
}

func TestFuseDeterministicTiebreak(t *testing.T) {
	t.Parallel()

	vec := []store.SearchResult{vecResult("b", 0.5), vecResult("a", 0.5)}
	results := Fuse(vec, nil, Weights{Vector: 1, Keyword: 0}, 10)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestRerankGate(t *testing.T) {
	t.Parallel()

	gate := DefaultRerankGate()

	t.Run("confident results skip rerank", func(t *testing.T) {
		t.Parallel()
		results := []Result{{Score: 0.9}, {Score: 0.5}}
		assert.False(t, gate.ShouldRerank(results))
	})

	t.Run("low top score triggers", func(t *testing.T) {
		t.Parallel()
		results := []Result{{Score: 0.3}, {Score: 0.1}}
		assert.True(t, gate.ShouldRerank(results))
	})

	t.Run("narrow margin triggers", func(t *testing.T) {
		t.Parallel()
		results := []Result{{Score: 0.8}, {Score: 0.79}}
		assert.True(t, gate.ShouldRerank(results))
	})

	t.Run("empty never triggers", func(t *testing.T) {
		t.Parallel()
		assert.False(t, gate.ShouldRerank(nil))
	})

	t.Run("single confident result skips", func(t *testing.T) {
		t.Parallel()
		assert.False(t, gate.ShouldRerank([]Result{{Score: 0.9}}))
	})

	t.Run("candidates capped", func(t *testing.T) {
		t.Parallel()
		results := make([]Result, 25)
		assert.Len(t, gate.Candidates(results), 10)
	})
}
