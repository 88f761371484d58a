package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	mu         sync.Mutex
	embedCalls int
	batchCalls int
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder(dims)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.embedCalls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batchCalls++
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitAvoidsInnerCall(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 10)

	v1, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.embedCalls, "second call served from cache")
}

func TestCachedEmbedder_BatchOnlyEmbedsUncached(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "warm")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	warm, err := cached.Embed(context.Background(), "warm")
	require.NoError(t, err)
	assert.Equal(t, warm, vecs[0])

	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachedEmbedder_AllCachedSkipsBatch(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = cached.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.batchCalls, "fully cached batch needs no inner call")
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 64, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner().(*countingEmbedder))

	require.NoError(t, cached.Close())
	assert.False(t, cached.Available(context.Background()))
}

func TestCachedEmbedder_ZeroSizeUsesDefault(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 0)

	_, err := cached.Embed(context.Background(), "text")
	require.NoError(t, err)
}
