package github

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const mutationAttempts = 3

// WithRetry wraps a mutating platform call with exponential backoff and
// jitter, a small fixed number of attempts, then gives up with a warning.
// The final error is returned so callers can decide whether the failure is
// fatal to them; per the pipeline's error model it usually is not.
func WithRetry(ctx context.Context, logger *slog.Logger, operation string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(500 * time.Millisecond)
	backoff = retry.WithJitter(250*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(mutationAttempts, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "abandoned operation after repeated failures",
			"operation", operation,
			"attempts", mutationAttempts+1,
			"error", err)
	}
	return err
}
