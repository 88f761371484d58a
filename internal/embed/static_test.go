package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(256)
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "JOB_PAYROLL abended with rc 8")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "JOB_PAYROLL abended with rc 8")
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same text must produce identical vectors")
	assert.Len(t, v1, 256)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder(128)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "workstation CPU1 unlinked")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5, "vector should be unit length")
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(64)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder(256)
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "AWSBHT061E job failed on workstation")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "how do I schedule a new job stream")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_DefaultDimensions(t *testing.T) {
	e := NewStaticEmbedder(0)
	assert.Equal(t, DefaultStaticDimensions, e.Dimensions())

	e = NewStaticEmbedder(1536)
	assert.Equal(t, 1536, e.Dimensions())
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder(128)
	defer func() { _ = e.Close() }()

	texts := []string{"first chunk", "second chunk", "third chunk"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), "second chunk")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1], "batch results match single embedding")

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStaticEmbedder_ClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder(64)
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"JOB_PAYROLL_DAILY", []string{"JOB", "PAYROLL", "DAILY"}},
		{"camelCaseToken", []string{"camel", "Case", "Token"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"plain", []string{"plain"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitIdentifier(tt.input), "input %q", tt.input)
	}
}

func TestTokenizeText_SharedTokensOverlap(t *testing.T) {
	// Texts naming the same job should share tokens so their static
	// vectors land near each other.
	t1 := tokenizeText("JOB_PAYROLL abend")
	t2 := tokenizeText("rerun job_payroll now")

	assert.Contains(t, t1, "payroll")
	assert.Contains(t, t2, "payroll")
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams("abcd", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}
