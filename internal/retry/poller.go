// Package retry holds the bounded polling primitive used to absorb
// read-after-write lag from the identity provider.
package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Check is one evaluation of the condition being waited on.
type Check func(ctx context.Context) bool

// Poller evaluates a Check until it holds or the time budget is spent.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	Backoff  Backoff
	Clock    clockwork.Clock
}

// New returns a fixed-interval poller on the real clock.
func New(interval, timeout time.Duration) *Poller {
	return &Poller{Interval: interval, Timeout: timeout}
}

// With returns a copy using a different interval and timeout, keeping the
// backoff strategy and clock.
func (p *Poller) With(interval, timeout time.Duration) *Poller {
	cp := *p
	cp.Interval = interval
	cp.Timeout = timeout
	return &cp
}

// Until blocks until check returns true (true), or the timeout elapses or ctx
// is done (false). check always runs at least once, even when the timeout is
// shorter than the interval. A wait that would end past the deadline is not
// started.
func (p *Poller) Until(ctx context.Context, check Check) bool {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Fixed{}
	}

	start := clock.Now()
	for attempt := 1; ; attempt++ {
		if check(ctx) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		wait := backoff.Next(attempt, p.Interval)
		if wait < 0 {
			wait = 0
		}
		elapsed := clock.Since(start)
		if elapsed >= p.Timeout || elapsed+wait > p.Timeout {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-clock.After(wait):
		}
	}
}

// Until is the fixed-interval form of Poller.Until.
func Until(ctx context.Context, check Check, interval, timeout time.Duration) bool {
	return New(interval, timeout).Until(ctx, check)
}
