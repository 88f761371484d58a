// Package llm defines the LLM completion capability consumed by the
// intent classifier, agent router, diagnostic engine, and memory
// extractor. The model itself is out of core; callers depend on the
// Client interface and inject a concrete implementation.
package llm

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/resync-ops/resync/internal/errors"
)

// Params tunes a single completion call.
type Params struct {
	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64

	// JSONMode asks the model for a parseable JSON object response.
	JSONMode bool
}

// Client completes prompts against a language model.
type Client interface {
	// Complete returns the model's response for the prompt.
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

// resilientClient wraps a Client with bounded retry and a circuit
// breaker. Integration failures retry at most twice; a tripped breaker
// fails fast with ServiceDegraded.
type resilientClient struct {
	inner   Client
	service string
	breaker *gobreaker.CircuitBreaker
	retry   errors.RetryConfig
}

// Verify interface implementation at compile time.
var _ Client = (*resilientClient)(nil)

// WithResilience decorates a client with the integration retry policy
// and a named circuit breaker.
func WithResilience(inner Client, service string) Client {
	if service == "" {
		service = "llm"
	}
	return &resilientClient{
		inner:   inner,
		service: service,
		breaker: errors.NewBreaker(service),
		retry:   errors.IntegrationRetryConfig(),
	}
}

func (c *resilientClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	return errors.RetryWithResult(ctx, c.retry, func() (string, error) {
		return errors.ExecuteWithBreaker(c.breaker, c.service, func() (string, error) {
			return c.inner.Complete(ctx, prompt, params)
		})
	})
}
