package ai

import (
	"context"
	"fmt"
	"time"
)

const (
	// defaultMaxRetries is the default number of retry attempts
	defaultMaxRetries = 3
)

// backoffFor picks the wait before the next attempt. Tests replace it.
var backoffFor = getBackoffDuration

// retryWithBackoff executes fn until it succeeds or maxAttempts is reached.
// The wait between attempts depends on the error kind. Permanent errors and a
// cancelled ctx end the loop early.
func retryWithBackoff[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if isPermanentError(err) {
			return result, fmt.Errorf("request rejected: %w", err)
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(backoffFor(err, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("retry aborted after %d attempt(s): %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return result, fmt.Errorf("all retry attempts failed: %w", lastErr)
}
