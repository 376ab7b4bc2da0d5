package kderrors

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds an exponential backoff retry loop for transient
// storage errors (spec §7). Grounded on the teacher's Redis publish
// backoff loop (adapter/redis.Adapter.Publish).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy makes up to three attempts at a transient failure
// (two retries after the first try) with a doubling delay starting at 250ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond}

// Do retries fn while it returns an error classified ErrStorageTransient,
// up to policy.MaxAttempts (including the first attempt). Any other
// error, or exhausting attempts, returns immediately.
func Do(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			delay := policy.BaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrStorageTransient) {
			return lastErr
		}
	}

	return lastErr
}
