package indexer

import (
	"math"
	"time"
)

// Backoff spaces out retries of a failing block: InitialDelay * 2^attempt,
// capped at MaxDelay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff returns sensible defaults for block polling.
// 2s, 4s, 8s, 16s, 32s (Max 60s)
func DefaultBackoff() Backoff {
	return Backoff{InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
}

// Delay returns the wait before retry number attempt (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// nextWait is the poll interval, stretched by the backoff while errors repeat.
func nextWait(interval time.Duration, b Backoff, errorStreak int) time.Duration {
	if errorStreak == 0 {
		return interval
	}
	return max(interval, b.Delay(errorStreak-1))
}
