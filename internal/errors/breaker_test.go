package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWithBreaker_PassesThroughSuccess(t *testing.T) {
	cb := NewBreaker("test")

	got, err := ExecuteWithBreaker(cb, "test", func() (int, error) {
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestExecuteWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	// Given: a breaker fed consecutive failures
	cb := NewBreaker("llm")
	boom := errors.New("boom")

	for i := uint32(0); i < DefaultBreakerThreshold; i++ {
		_, err := ExecuteWithBreaker(cb, "llm", func() (string, error) {
			return "", boom
		})
		require.Error(t, err)
	}

	// When: calling once more
	_, err := ExecuteWithBreaker(cb, "llm", func() (string, error) {
		return "should not run", nil
	})

	// Then: the breaker is open and the call is degraded
	require.Error(t, err)
	assert.Equal(t, ErrCodeServiceDegraded, GetCode(err))
}
