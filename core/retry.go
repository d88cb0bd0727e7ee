package core

import (
	"context"
	"fmt"
	"time"
)

// callAttempts is the total number of attempts a remote call ever gets:
// the original call plus exactly one retry.
const callAttempts = 2

// CallConfig bounds a single fallible remote call.
type CallConfig struct {
	// RetryDelay is the fixed wait before the second attempt.
	RetryDelay time.Duration
	// AttemptTimeout bounds each attempt individually; exceeding it counts
	// as a failure for that attempt.
	AttemptTimeout time.Duration
}

// DefaultCallConfig returns the standard remote-call policy.
func DefaultCallConfig() CallConfig {
	return CallConfig{
		RetryDelay:     1 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// CallWithRetry executes op once and, on any failure, exactly once more
// after cfg.RetryDelay. Each attempt runs under its own deadline. The wrapper
// does not inspect the failure: timeouts, transport errors, and malformed
// responses all retry alike. Terminal-failure behavior belongs to the caller.
func CallWithRetry[T any](ctx context.Context, cfg CallConfig, name string, logger *Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= callAttempts; attempt++ {
		if attempt > 1 {
			logger.With(map[string]any{"call": name, "error": lastErr}).
				Warn("remote call failed, retrying")
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%s: %w", name, ctx.Err())
			case <-time.After(cfg.RetryDelay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
		result, err := op(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%s: failed after %d attempts: %w", name, callAttempts, lastErr)
}
