package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
)

func TestFake_ScriptedResponses(t *testing.T) {
	f := NewFake("first", "second")
	f.Default = "fallback"

	resp, err := f.Complete(context.Background(), "p1", Params{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp)

	resp, err = f.Complete(context.Background(), "p2", Params{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp)

	resp, err = f.Complete(context.Background(), "p3", Params{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp)

	assert.Equal(t, 3, f.CallCount())
	assert.Equal(t, []string{"p1", "p2", "p3"}, f.Prompts)
}

func TestWithResilience_PassesThroughSuccess(t *testing.T) {
	f := NewFake("ok")
	c := WithResilience(f, "llm")

	resp, err := c.Complete(context.Background(), "hello", Params{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 1, f.CallCount())
}

func TestWithResilience_RetriesIntegrationFailures(t *testing.T) {
	f := &Fake{Err: errors.NewIntegrationError("llm", assert.AnError)}
	retry := errors.IntegrationRetryConfig()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = 2 * time.Millisecond
	c := &resilientClient{inner: f, service: "llm", breaker: errors.NewBreaker("llm"), retry: retry}

	_, err := c.Complete(context.Background(), "hello", Params{})
	require.Error(t, err)
	// Initial attempt plus two retries per the integration policy.
	assert.Equal(t, 3, f.CallCount())
}

func TestWithResilience_DoesNotRetryValidation(t *testing.T) {
	f := &Fake{Err: errors.NewValidationError("prompt must not be empty", nil)}
	c := WithResilience(f, "llm")

	_, err := c.Complete(context.Background(), "", Params{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1, f.CallCount())
}
