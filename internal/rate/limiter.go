package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates outbound API calls so we respect provider rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Admission caps how many calls may be in flight at once. It bounds
// concurrency, not call rate; pair it with a TokenBucket when a provider
// enforces a per-second quota as well.
type Admission struct {
	slots chan struct{}
}

// NewAdmission returns an admission limiter allowing at most n concurrent calls.
func NewAdmission(n int) *Admission {
	if n <= 0 {
		n = 1
	}
	return &Admission{slots: make(chan struct{}, n)}
}

// Acquire blocks until an in-flight slot is available or the context is canceled.
func (a *Admission) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("admission wait canceled: %w", ctx.Err())
	case a.slots <- struct{}{}:
		return nil
	}
}

// Release frees a slot taken by Acquire.
func (a *Admission) Release() {
	<-a.slots
}

// TokenBucket implements a simple fixed-rate token bucket limiter.
type TokenBucket struct {
	ticker   *time.Ticker
	tokens   chan struct{}
	quit     chan struct{}
	stopDone chan struct{}
}

// NewTokenBucket returns a limiter that releases rps tokens per second.
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	tb := &TokenBucket{
		ticker:   time.NewTicker(time.Second / time.Duration(rps)),
		tokens:   make(chan struct{}, rps),
		quit:     make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	// allow the first call to proceed immediately
	tb.tokens <- struct{}{}
	go tb.run()
	return tb
}

func (t *TokenBucket) run() {
	defer close(t.stopDone)
	for {
		select {
		case <-t.quit:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases resources held by the limiter and waits for the refill
// goroutine to exit. Ticker.Stop alone never closes the tick channel, so the
// quit channel is what actually unblocks run.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.quit)
	<-t.stopDone
}

var _ Limiter = (*TokenBucket)(nil)
