package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientConnectionError(t *testing.T) {
	// Given: a function that fails twice with a retryable error then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return NewConnectionError("redis unreachable", nil)
		}
		return nil
	}

	// When: retrying with default config
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond // Speed up test
	cfg.MaxDelay = 20 * time.Millisecond

	err := Retry(context.Background(), cfg, fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	// Given: a function that fails with a validation error
	attempts := 0
	fn := func() error {
		attempts++
		return NewValidationError("empty memory_id", nil)
	}

	// When: retrying
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond

	err := Retry(context.Background(), cfg, fn)

	// Then: single attempt, error surfaces unwrapped
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsValidation(err))
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a function that always fails with a retryable error
	attempts := 0
	fn := func() error {
		attempts++
		return NewConnectionError("persistent outage", nil)
	}

	// When: retrying with limited retries
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}

	err := Retry(context.Background(), cfg, fn)

	// Then: fails with wrapped error, original still classifiable
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // Initial + 2 retries
	assert.True(t, IsConnection(err))
}

func TestRetry_RetryAllRetriesPlainErrors(t *testing.T) {
	// Given: a plain error and RetryAll set
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}

	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		RetryAll:     true,
	}

	err := Retry(context.Background(), cfg, fn)

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: a function that always fails retryably
	fn := func() error {
		return NewConnectionError("down", nil)
	}

	// When: context is cancelled during backoff
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.Jitter = false

	err := Retry(ctx, cfg, fn)

	// Then: returns the context error promptly
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	// Given: a function that fails once then returns a value
	attempts := 0
	fn := func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", NewConnectionError("blip", nil)
		}
		return "chunk-42", nil
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond

	got, err := RetryWithResult(context.Background(), cfg, fn)

	require.NoError(t, err)
	assert.Equal(t, "chunk-42", got)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithResult_NonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	fn := func() (int, error) {
		attempts++
		return 0, NewQueryError("syntax error", nil)
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond

	_, err := RetryWithResult(context.Background(), cfg, fn)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryConfig_MatchesBackoffPolicy(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxDelay)
}

func TestIntegrationRetryConfig_TwoRetries(t *testing.T) {
	cfg := IntegrationRetryConfig()

	assert.Equal(t, 2, cfg.MaxRetries)
}
