package sink

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vietddude/lnbridge/internal/infra/storage"
)

// RetryStrategy defines how failed sink writes are retried.
type RetryStrategy interface {
	// GetDelay returns the delay before the given retry (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff retries three times: 100ms, 200ms, 400ms.
// Writes block the subscription, so delays stay short.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  3,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxAttempts {
		return false
	}
	return transient(err)
}

// transient reports whether a write may succeed when repeated.
func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, storage.ErrJournalClosed):
		return false
	default:
		return true
	}
}
