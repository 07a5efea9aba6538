package orchestrator

import (
	"context"
	"time"
)

// RetryPolicy bounds submission attempts against transient portal
// failures (slow postbacks, dropped postback responses).
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy matches the portal's tolerance: a couple of
// retries with a short linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 2 * time.Second}
}

// Do runs fn up to Attempts times, backing off linearly between tries
// and stopping early when the context ends.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * p.Backoff):
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
