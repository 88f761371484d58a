package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 8

func testVec(seed int) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = float32((seed+i)%5) - 2
	}
	v[seed%testDims] += 3
	return v
}

func seedCorpus(t *testing.T, vs VectorStore, chunks []*Chunk) {
	t.Helper()
	require.NoError(t, vs.Upsert(context.Background(), "docs", chunks))
}

func TestBM25SearchRanksTermFrequency(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "d1", ChunkID: "d1#0", Content: "scheduler restart procedure for the master scheduler", Embedding: testVec(1), SHA256: "s1"},
		{DocumentID: "d2", ChunkID: "d2#0", Content: "backup policy overview", Embedding: testVec(2), SHA256: "s2"},
	})

	idx := NewBM25Index(vs, "docs")
	hits, err := idx.Search(context.Background(), "scheduler restart", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1#0", hits[0].ChunkID)
	assert.Positive(t, hits[0].Score)
}

func TestBM25FieldBoostOutranksBody(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{
			DocumentID: "prose", ChunkID: "prose#0",
			Content:   "awsbh001 awsbh001 mentioned twice in passing prose",
			Embedding: testVec(1), SHA256: "s1",
		},
		{
			DocumentID: "runbook", ChunkID: "runbook#0",
			Content:   "recovery runbook awsbh001",
			Embedding: testVec(2), SHA256: "s2",
			Metadata:  ChunkMetadata{JobNames: []string{"AWSBH001"}},
		},
	})

	idx := NewBM25Index(vs, "docs")
	hits, err := idx.Search(context.Background(), "AWSBH001", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "runbook#0", hits[0].ChunkID,
		"job_name field match should outrank higher body term frequency")
}

func TestBM25ErrorCodeBoostMatchesAllSpellings(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{
			DocumentID: "rc8", ChunkID: "rc8#0",
			Content:   "return code eight troubleshooting rc=8",
			Embedding: testVec(1), SHA256: "s1",
			Metadata:  ChunkMetadata{ErrorCodes: []string{"rc_8"}},
		},
		{
			DocumentID: "other", ChunkID: "other#0",
			Content:   "return code handling in general rc=8 rc=8",
			Embedding: testVec(2), SHA256: "s2",
		},
	})

	idx := NewBM25Index(vs, "docs")
	for _, query := range []string{"RC=8", "rc 8", "RC8"} {
		hits, err := idx.Search(context.Background(), query, 10)
		require.NoError(t, err, "query %q", query)
		require.NotEmpty(t, hits, "query %q", query)
		assert.Equal(t, "rc8#0", hits[0].ChunkID, "query %q", query)
	}
}

func TestBM25EmptyQuery(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	idx := NewBM25Index(vs, "docs")

	hits, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBM25EmptyCorpus(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	idx := NewBM25Index(vs, "docs")

	hits, err := idx.Search(context.Background(), "scheduler", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, idx.DocCount())
}

func TestBM25RebuildPicksUpNewChunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "d1", ChunkID: "d1#0", Content: "alpha content", Embedding: testVec(1), SHA256: "s1"},
	})

	idx := NewBM25Index(vs, "docs")
	hits, err := idx.Search(ctx, "beta", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, idx.DocCount())

	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "d2", ChunkID: "d2#0", Content: "beta content", Embedding: testVec(2), SHA256: "s2"},
	})

	// Stale until an explicit rebuild.
	hits, err = idx.Search(ctx, "beta", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Rebuild(ctx))
	hits, err = idx.Search(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2#0", hits[0].ChunkID)
}

func TestBM25DeterministicTiebreak(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	var chunks []*Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, &Chunk{
			DocumentID: fmt.Sprintf("d%d", i),
			ChunkID:    fmt.Sprintf("d%d#0", i),
			Content:    "identical content everywhere",
			Embedding:  testVec(i),
			SHA256:     fmt.Sprintf("s%d", i),
		})
	}
	seedCorpus(t, vs, chunks)

	idx := NewBM25Index(vs, "docs")
	first, err := idx.Search(context.Background(), "identical content", 5)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].ChunkID, first[i].ChunkID)
	}
}
