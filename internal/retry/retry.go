// Package retry runs fallible operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ricirt/job-harvester/internal/domain"
)

// ErrExhausted is wrapped into the error returned once MaxAttempts is reached.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures Do. The zero value makes a single attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter draws each wait uniformly from [0, delay) instead of waiting the
	// full computed delay.
	Jitter bool

	// Retryable reports whether err is worth another attempt. Nil means every
	// error that is not marked permanent is retried.
	Retryable func(err error) bool

	// OnRetry is called before each wait; attempt is the attempt that failed.
	OnRetry func(attempt int, wait time.Duration, err error)

	// Sleep replaces the timer wait. Tests use it to record waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the RETRY_* config defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    60 * time.Second,
	Jitter:      true,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or carries
// domain.ErrPermanentFetch.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe) || errors.Is(err, domain.ErrPermanentFetch)
}

// Backoff returns the computed delay after the given failed attempt (1-based):
// min(base * 2^(attempt-1), max). It never decreases as attempt grows.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > (1<<62)/2 {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) wait(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if !p.Jitter || d <= 0 {
		return d
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// Do runs op until it succeeds, returns a permanent or non-retryable error, or
// MaxAttempts is reached. The first attempt runs immediately. Nothing is held
// across the wait, so op may perform its own I/O freely.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		wait := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, errors.Join(err, lastErr))
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
