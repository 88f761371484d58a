package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
)

func TestNoOpRerankerKeepsOrder(t *testing.T) {
	t.Parallel()

	results, err := NoOpReranker{}.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestLLMRerankerOrdersByScore(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(`{"scores": [0.2, 0.9, 0.5]}`)
	r := NewLLMReranker(fake)

	results, err := r.Rerank(context.Background(), "restart AWSBH001", []string{"d0", "d1", "d2"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestLLMRerankerClampsScores(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(`{"scores": [1.7, -0.3]}`)
	r := NewLLMReranker(fake)

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)
}

func TestLLMRerankerMalformedResponse(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(`not json`)
	r := NewLLMReranker(fake)

	_, err := r.Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsDataParsing(err))
}

func TestLLMRerankerShortResponse(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(`{"scores": [0.5]}`)
	r := NewLLMReranker(fake)

	_, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.IsDataParsing(err))
}

func TestLLMRerankerEmptyDocuments(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake()
	r := NewLLMReranker(fake)

	results, err := r.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, fake.CallCount())
}
