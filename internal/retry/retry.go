// Package retry provides a bounded exponential-backoff wrapper shared by the
// Front and Gmail clients. The caller supplies the predicate that decides
// which errors are transient; everything else surfaces on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy controls attempt count and backoff shape.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable reports whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep is swappable for tests; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the providers' fairness expectations: three attempts,
// half-second base delay, doubled per attempt with random jitter.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Retryable:   retryable,
	}
}

// AttemptsError wraps the final error once all attempts are exhausted.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Do runs op under the policy and returns its last result. Non-retryable
// errors are returned unwrapped so callers can classify them with errors.As.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if sleepErr := sleep(ctx, backoff(p.BaseDelay, attempt)); sleepErr != nil {
			return zero, sleepErr
		}
	}
	return zero, &AttemptsError{Attempts: p.MaxAttempts, Err: lastErr}
}

// backoff doubles the base per attempt and adds up to 50% random jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err is the result of running out of attempts.
func IsExhausted(err error) bool {
	var ae *AttemptsError
	return errors.As(err, &ae)
}
