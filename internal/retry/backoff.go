package retry

import (
	"math"
	"time"
)

// Backoff yields the wait before evaluation attempt+1, given the base interval.
// attempt is 1-based and counts evaluations already made.
type Backoff interface {
	Next(attempt int, interval time.Duration) time.Duration
}

// Fixed waits the base interval every time.
type Fixed struct{}

func (Fixed) Next(_ int, interval time.Duration) time.Duration {
	return interval
}

// Exponential multiplies the base interval per attempt, capped at Max when Max > 0.
type Exponential struct {
	Multiplier float64
	Max        time.Duration
}

func (e Exponential) Next(attempt int, interval time.Duration) time.Duration {
	if attempt <= 1 || interval <= 0 {
		return interval
	}
	m := e.Multiplier
	if m < 1.0 {
		m = 1.0
	}
	d := float64(interval) * math.Pow(m, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	return time.Duration(d)
}
