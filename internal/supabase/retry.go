package supabase

import (
	"context"
	"fmt"
	"time"
)

var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// RetryWithBackoff calls fn up to maxRetries times, sleeping backoff[i] after
// the i-th failure. The last delay is reused when backoff is shorter.
func RetryWithBackoff(ctx context.Context, maxRetries int, backoff []time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i == maxRetries-1 || len(backoff) == 0 {
			continue
		}

		delay := backoff[len(backoff)-1]
		if i < len(backoff) {
			delay = backoff[i]
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
