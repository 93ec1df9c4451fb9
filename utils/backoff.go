package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as non-retryable, Retry returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

type Backoff struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is a relative spread applied to every interval, 0.25 means ±25%.
	Jitter float64
}

// Interval returns the wait before the given retry, starting from 1.
func (b *Backoff) Interval(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	interval := float64(b.InitialInterval) * math.Pow(multiplier, float64(retry-1))
	if b.MaxInterval > 0 && interval > float64(b.MaxInterval) {
		interval = float64(b.MaxInterval)
	}
	if b.Jitter > 0 {
		spread := interval * b.Jitter
		interval += rand.Float64()*2*spread - spread //nolint:gosec
	}
	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// Retry calls fn until it succeeds, returns a permanent error, or MaxAttempts calls were made.
// MaxAttempts <= 0 retries until ctx is cancelled.
func (b *Backoff) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; b.MaxAttempts <= 0 || attempt <= b.MaxAttempts; attempt++ {
		if attempt > 1 && ContextSleep(ctx, b.Interval(attempt-1)) == nil {
			return fmt.Errorf("interrupted after %d attempts: %w", attempt-1, lastErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, b.MaxAttempts, lastErr)
}
