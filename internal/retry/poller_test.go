package retry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// drive runs fn in the background and advances fc by step whenever fn is
// blocked waiting on the clock.
func drive(t *testing.T, fc fakeClock, step time.Duration, fn func() bool) bool {
	t.Helper()
	done := make(chan bool, 1)
	go func() { done <- fn() }()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ok := <-done:
			return ok
		case <-deadline:
			t.Fatal("poller did not finish")
			return false
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		if fc.BlockUntilContext(ctx, 1) == nil {
			fc.Advance(step)
		}
		cancel()
	}
}

func TestUntilShouldReturnTrueOnThirdEvaluation(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := &Poller{Interval: time.Second, Timeout: 10 * time.Second, Clock: fc}

	evals := 0
	ok := drive(t, fc, time.Second, func() bool {
		return p.Until(context.Background(), func(context.Context) bool {
			evals++
			return evals == 3
		})
	})
	if !ok {
		t.Fatal("expected true")
	}
	if evals != 3 {
		t.Errorf("expected 3 evaluations, got %d", evals)
	}
}

func TestUntilShouldEvaluateOnceWhenTimeoutShorterThanInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := &Poller{Interval: 5 * time.Second, Timeout: 3 * time.Second, Clock: fc}

	evals := 0
	ok := drive(t, fc, 5*time.Second, func() bool {
		return p.Until(context.Background(), func(context.Context) bool {
			evals++
			return false
		})
	})
	if ok {
		t.Fatal("expected false")
	}
	if evals != 1 {
		t.Errorf("expected exactly 1 evaluation, got %d", evals)
	}
}

func TestUntilShouldStopAtTimeout(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := &Poller{Interval: time.Second, Timeout: 3 * time.Second, Clock: fc}

	evals := 0
	ok := drive(t, fc, time.Second, func() bool {
		return p.Until(context.Background(), func(context.Context) bool {
			evals++
			return false
		})
	})
	if ok {
		t.Fatal("expected false")
	}
	// evaluations at t=0,1,2,3
	if evals != 4 {
		t.Errorf("expected 4 evaluations, got %d", evals)
	}
}

func TestUntilShouldReturnFalseWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	evals := 0
	ok := Until(ctx, func(context.Context) bool {
		evals++
		cancel()
		return false
	}, time.Hour, 24*time.Hour)
	if ok {
		t.Fatal("expected false after cancel")
	}
	if evals != 1 {
		t.Errorf("expected 1 evaluation, got %d", evals)
	}
}

func TestUntilRealClockImmediateSuccess(t *testing.T) {
	if !Until(context.Background(), func(context.Context) bool { return true }, time.Millisecond, 0) {
		t.Fatal("expected immediate success even with zero timeout")
	}
}

func TestWithShouldKeepClockAndBackoff(t *testing.T) {
	fc := clockwork.NewFakeClock()
	base := &Poller{Interval: time.Second, Timeout: time.Minute, Clock: fc, Backoff: Exponential{Multiplier: 2}}
	cp := base.With(2*time.Second, time.Hour)
	if cp.Clock != base.Clock || cp.Backoff != base.Backoff {
		t.Fatal("expected clock and backoff to be kept")
	}
	if base.Interval != time.Second || cp.Interval != 2*time.Second || cp.Timeout != time.Hour {
		t.Fatalf("unexpected intervals: base=%v copy=%v/%v", base.Interval, cp.Interval, cp.Timeout)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := Exponential{Multiplier: 2, Max: 5 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Next(tc.attempt, time.Second); got != tc.want {
			t.Errorf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
	if got := (Fixed{}).Next(9, time.Second); got != time.Second {
		t.Errorf("fixed: got %v", got)
	}
}
