package db

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type RetryOptions struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, BaseBackoff: 50 * time.Millisecond}
}

// WithRetry は fn を再試行可能なエラーの間だけジッター付き指数バックオフで繰り返す。
// fn は毎回新しいトランザクションを張ること。
func WithRetry(ctx context.Context, opts RetryOptions, fn func() error) error {
	backoff := opts.BaseBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= opts.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err)
		}

		jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}
