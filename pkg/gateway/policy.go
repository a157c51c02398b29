package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/advisor/pkg/clock"
)

// Policy bounds how a remote call is attempted.
type Policy struct {
	// MaxRetries is the total number of attempts, not the number of re-tries.
	MaxRetries        int
	PerAttemptTimeout time.Duration
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

// DefaultPolicy returns 3 attempts of 30s each, waiting 1s then 2s in between.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		PerAttemptTimeout: 30 * time.Second,
		BaseDelay:         time.Second,
		MaxDelay:          5 * time.Second,
	}
}

// Backoff returns the wait after the failed attempt with the given zero-based
// index: min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.MaxDelay || d > p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Retry runs fn until it succeeds or the policy is exhausted, sleeping on c
// between attempts. It stops early when ctx is done. The last observed error
// is returned on exhaustion.
func Retry[T any](ctx context.Context, p Policy, c clock.Clock, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	n := p.attempts()

	for attempt := 0; attempt < n; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("attempt %d/%d: %w", attempt+1, n, lastErr)
		}
		if attempt < n-1 {
			if err := c.Sleep(ctx, p.Backoff(attempt)); err != nil {
				return zero, fmt.Errorf("attempt %d/%d: %w", attempt+1, n, lastErr)
			}
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", n, lastErr)
}
