package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// WithReadRetry runs fn, retrying once with backoff on failure. It is meant
// for read-only queries where a transient connection error should not surface
// to the caller. Write paths must not use it.
func WithReadRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
