package common

import (
	"context"
	"math/rand"
	"time"
)

const (
	// maxAttempts bounds retries for a single API call. Attempts beyond the
	// budget surface as a *TransientError.
	maxAttempts = 3

	// baseBackoff is the delay before the first retry; it doubles per attempt.
	baseBackoff = 200 * time.Millisecond
)

// Retry invokes fn up to maxAttempts times, sleeping with exponential backoff
// and jitter between attempts. Only throttling and transient service errors
// are retried; anything else is returned immediately. Retries stop early when
// ctx is cancelled, so the per-scanner timeout budget is always honoured.
func Retry[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		err  error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, &TransientError{Op: op, Attempts: maxAttempts, Err: err}
}

// backoffDelay returns the sleep before the next attempt: base * 2^(n-1)
// plus up to 50% random jitter to avoid synchronised retry storms.
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}
