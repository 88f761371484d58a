package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyEndpointSelectsStatic(t *testing.T) {
	e, err := New(FactoryConfig{Dimensions: 1536})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "factory wraps the embedder in a cache")
	_, ok = cached.Inner().(*StaticEmbedder)
	assert.True(t, ok)
}

func TestNew_EndpointSelectsHTTP(t *testing.T) {
	e, err := New(FactoryConfig{Endpoint: "http://localhost:9999", Model: "tws-embed", Dimensions: 8})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "tws-embed", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	_, ok = cached.Inner().(*HTTPEmbedder)
	assert.True(t, ok)
}

func TestNew_StaticStackEmbeds(t *testing.T) {
	e, err := New(FactoryConfig{Dimensions: 64})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "chunk text")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}
