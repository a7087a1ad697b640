package httputil

import (
	"context"
	"fmt"
	"time"

	"listing_intake/logging"
)

// Retry holds the parameters for an exponential back-off strategy.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Do runs fn until it succeeds, the attempts run out or ctx is done.
func (r Retry) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := r.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logging.Warn("retrying", "op", operation, "attempt", attempt, "max", attempts, "err", lastErr, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
