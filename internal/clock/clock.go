package clock

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, in which case it returns ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake is deterministic and test-friendly. Sleep records the requested
// duration, publishes it on Slept and blocks until Wake or ctx cancellation.
type Fake struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration

	slept chan time.Duration
	wake  chan struct{}
}

func NewFake(start time.Time) *Fake {
	return &Fake{
		t:     start,
		slept: make(chan time.Duration, 64),
		wake:  make(chan struct{}),
	}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	select {
	case c.slept <- d:
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.wake:
		c.Advance(d)
		return nil
	}
}

// Slept delivers every duration passed to Sleep, in call order.
func (c *Fake) Slept() <-chan time.Duration {
	return c.slept
}

// Wake releases one blocked Sleep call.
func (c *Fake) Wake() {
	c.wake <- struct{}{}
}

func (c *Fake) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
