package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
)

func unitVec(values ...float32) []float32 {
	v := make([]float32, testDims)
	copy(v, values)
	return v
}

func TestMemoryStoreSearchOrdersByCosine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "exact", Embedding: unitVec(1, 0), SHA256: "sa"},
		{DocumentID: "b", ChunkID: "b#0", Content: "close", Embedding: unitVec(1, 1), SHA256: "sb"},
		{DocumentID: "c", ChunkID: "c#0", Content: "opposite", Embedding: unitVec(-1, 0), SHA256: "sc"},
	})

	results, err := vs.Search(ctx, "docs", unitVec(1, 0), 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a#0", results[0].ChunkID)
	assert.Equal(t, "b#0", results[1].ChunkID)
	assert.Equal(t, "c#0", results[2].ChunkID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Greater(t, results[1].Similarity, results[2].Similarity)
}

func TestMemoryStoreSearchRespectsK(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "one", Embedding: unitVec(1, 0), SHA256: "sa"},
		{DocumentID: "b", ChunkID: "b#0", Content: "two", Embedding: unitVec(0, 1), SHA256: "sb"},
	})

	results, err := vs.Search(context.Background(), "docs", unitVec(1, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a#0", results[0].ChunkID)
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{
			DocumentID: "zos", ChunkID: "zos#0", Content: "zos doc",
			Embedding: unitVec(1, 0), SHA256: "sa",
			Metadata: ChunkMetadata{Platform: "zos", DocType: "runbook"},
		},
		{
			DocumentID: "dist", ChunkID: "dist#0", Content: "distributed doc",
			Embedding: unitVec(1, 0), SHA256: "sb",
			Metadata: ChunkMetadata{Platform: "distributed", DocType: "runbook"},
		},
	})

	results, err := vs.Search(context.Background(), "docs", unitVec(1, 0), 10,
		Filters{"platform": "zos"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "zos#0", results[0].ChunkID)

	results, err = vs.Search(context.Background(), "docs", unitVec(1, 0), 10,
		Filters{"platform": "zos", "doc_type": "reference"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)

	err := vs.Upsert(ctx, "docs", []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "x", Embedding: []float32{1, 2}, SHA256: "sa"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = vs.Search(ctx, "docs", []float32{1, 2}, 3, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestMemoryStoreUpsertReplacesByChunkID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "old", Embedding: unitVec(1, 0), SHA256: "old-sha"},
	})
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "new", Embedding: unitVec(1, 0), SHA256: "new-sha"},
	})

	count, err := vs.Count(ctx, "docs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	exists, err := vs.ExistsBySHA256(ctx, "docs", "old-sha")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = vs.ExistsBySHA256(ctx, "docs", "new-sha")
	require.NoError(t, err)
	assert.True(t, exists)

	results, err := vs.Search(ctx, "docs", unitVec(1, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Content)
}

func TestMemoryStoreExistsBySHA256EmptyKey(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	_, err := vs.ExistsBySHA256(context.Background(), "docs", "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestMemoryStoreDeleteByDocumentID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "a0", Embedding: unitVec(1, 0), SHA256: "s0"},
		{DocumentID: "a", ChunkID: "a#1", Content: "a1", Embedding: unitVec(0, 1), SHA256: "s1"},
		{DocumentID: "b", ChunkID: "b#0", Content: "b0", Embedding: unitVec(0, 0, 1), SHA256: "s2"},
	})

	deleted, err := vs.DeleteByDocumentID(ctx, "docs", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	count, err := vs.Count(ctx, "docs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	results, err := vs.Search(ctx, "docs", unitVec(1, 0), 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b#0", results[0].ChunkID)

	deleted, err = vs.DeleteByDocumentID(ctx, "docs", "missing")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryStoreGetAllDocumentsInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)
	seedCorpus(t, vs, []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Content: "first", Embedding: unitVec(1, 0), SHA256: "s0"},
		{DocumentID: "a", ChunkID: "a#1", Content: "second", Embedding: unitVec(0, 1), SHA256: "s1"},
		{DocumentID: "b", ChunkID: "b#0", Content: "third", Embedding: unitVec(0, 0, 1), SHA256: "s2"},
	})

	chunks, err := vs.GetAllDocuments(ctx, "docs", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "a#0", chunks[0].ChunkID)
	assert.Equal(t, "a#1", chunks[1].ChunkID)
	assert.Equal(t, "b#0", chunks[2].ChunkID)

	chunks, err = vs.GetAllDocuments(ctx, "docs", 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestMemoryStoreUnknownCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vs := NewMemoryVectorStore(testDims)

	results, err := vs.Search(ctx, "nope", unitVec(1, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := vs.Count(ctx, "nope")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()

	vs := NewMemoryVectorStore(testDims)
	require.NoError(t, vs.Close())

	err := vs.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))

	err = vs.Upsert(context.Background(), "docs", []*Chunk{
		{DocumentID: "a", ChunkID: "a#0", Embedding: unitVec(1), SHA256: "s"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
}
