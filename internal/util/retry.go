package util

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retry calls fn up to maxAttempts times, doubling the delay after each
// failure starting from baseDelay. Errors caused by context cancellation are
// returned immediately, as is ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		slog.Debug("retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
