package main

import (
	"sync"
	"time"
)

// RateResult is the outcome of a limiter check.
type RateResult struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// AttemptLimiter throttles repeated attempts per key. Injected rather than
// global so a distributed implementation can replace the in-memory one
// without touching call sites.
type AttemptLimiter interface {
	Check(key string, maxAttempts int, window time.Duration) RateResult
	Reset(key string)
	Sweep()
}

type rateEntry struct {
	attempts int
	resetAt  time.Time
}

// SlidingResetLimiter counts attempts per key in a window that fully resets
// once it elapses; past attempts do not decay individually. State is
// process-local and lost on restart.
type SlidingResetLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateEntry
	now     func() time.Time
}

func NewSlidingResetLimiter() *SlidingResetLimiter {
	return &SlidingResetLimiter{
		entries: make(map[string]*rateEntry),
		now:     time.Now,
	}
}

// Check records one attempt. The attempt that reaches maxAttempts is still
// allowed; the next one is denied until the window resets.
func (l *SlidingResetLimiter) Check(key string, maxAttempts int, window time.Duration) RateResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &rateEntry{resetAt: now.Add(window)}
		l.entries[key] = e
	}
	e.attempts++
	if e.attempts > maxAttempts {
		retry := int(e.resetAt.Sub(now) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return RateResult{Allowed: false, Remaining: 0, RetryAfterSeconds: retry}
	}
	return RateResult{Allowed: true, Remaining: maxAttempts - e.attempts}
}

// Reset forgives all attempts for a key. Unknown keys are a no-op.
func (l *SlidingResetLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Sweep drops entries whose window has elapsed. Check already lazily resets
// expired windows, so this only bounds memory.
func (l *SlidingResetLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
		}
	}
}
