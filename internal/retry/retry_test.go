package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("rate limited")
var errFatal = errors.New("unauthorized")

func noSleep(ctx context.Context, d time.Duration) error {
	_ = ctx
	_ = d
	return nil
}

func policy(t *testing.T) Policy {
	t.Helper()
	p := DefaultPolicy(func(err error) bool { return errors.Is(err, errTransient) })
	p.Sleep = noSleep
	return p
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), policy(t), func(ctx context.Context) (string, error) {
		_ = ctx
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected result: %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), policy(t), func(ctx context.Context) (int, error) {
		_ = ctx
		calls++
		return 0, errTransient
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !IsExhausted(err) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestDoFatalNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), policy(t), func(ctx context.Context) (int, error) {
		_ = ctx
		calls++
		return 0, errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error retried: %d calls", calls)
	}
	if IsExhausted(err) {
		t.Fatalf("fatal error must not look like exhaustion")
	}
}

func TestDoCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := policy(t)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		_ = d
		cancel()
		return ctx.Err()
	}
	calls := 0
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		_ = ctx
		calls++
		return 0, errTransient
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoffGrows(t *testing.T) {
	base := 500 * time.Millisecond
	for attempt := 1; attempt <= 3; attempt++ {
		d := backoff(base, attempt)
		min := base << (attempt - 1)
		max := min + min/2
		if d < min || d > max {
			t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, d, min, max)
		}
	}
}
