package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetryAfter = time.Minute
	blockedRetryAfter = 10 * time.Minute
)

var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
	"monthly quota exceeded",
}

// throttleState remembers until when a provider asked us to back off.
type throttleState struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

func newThrottleState() *throttleState {
	return &throttleState{now: time.Now}
}

// record applies a 429/403 response. retryAfter is the raw Retry-After header.
func (t *throttleState) record(statusCode int, retryAfter string) {
	d := defaultRetryAfter
	if statusCode == 403 {
		d = blockedRetryAfter
	} else if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if until := t.now().Add(d); until.After(t.until) {
		t.until = until
	}
}

// remaining returns how long calls should still be held back.
func (t *throttleState) remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.until.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}

func isThrottleMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
