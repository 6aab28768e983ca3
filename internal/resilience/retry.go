package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry calls task until it succeeds, returns a non retryable error, or
// maxRetries extra attempts have been spent. Backoff is Fibonacci starting at base.
func Retry(ctx context.Context, maxRetries int, base time.Duration, shouldRetry func(error) bool, task func(ctx context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(maxRetries), retry.NewFibonacci(base))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := task(ctx)
		if err != nil && shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
