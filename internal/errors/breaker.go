package errors

import (
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that
	// trips a breaker open.
	DefaultBreakerThreshold uint32 = 5

	// DefaultBreakerTimeout is how long a breaker stays open before
	// probing with a half-open request.
	DefaultBreakerTimeout = 30 * time.Second
)

// NewBreaker returns a circuit breaker for an external dependency.
// Repeated connection failures trip it open; while open, calls fail
// fast with ServiceDegraded instead of hammering the dependency.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: DefaultBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= DefaultBreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// ExecuteWithBreaker runs fn through the breaker, mapping an open or
// saturated breaker to a ServiceDegraded error for the named service.
func ExecuteWithBreaker[T any](cb *gobreaker.CircuitBreaker, service string, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, NewServiceDegradedError(service, err)
		}
		return zero, err
	}
	return res.(T), nil
}
