package server

import (
	"sync"
	"time"
)

// loginRateLimiter blocks a client+email pair after repeated failed logins.
type loginRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]loginAttempts
	maxFailures   int
	window        time.Duration
	blockedFor    time.Duration
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type loginAttempts struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func newLoginRateLimiter(maxFailures int, window, blockedFor time.Duration) *loginRateLimiter {
	if maxFailures <= 0 || window <= 0 || blockedFor <= 0 {
		return nil
	}
	staleAfter := 2 * max(window, blockedFor)
	return &loginRateLimiter{
		entries:       make(map[string]loginAttempts),
		maxFailures:   maxFailures,
		window:        window,
		blockedFor:    blockedFor,
		staleAfter:    max(staleAfter, 10*time.Minute),
		cleanupEveryN: 64,
	}
}

// Allow reports whether key may attempt a login at now, and if not, how
// long the block lasts.
func (l *loginRateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil || key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.maybeCleanupLocked(now)

	entry := l.entries[key]
	entry.lastSeen = now
	if now.Before(entry.blockedUntil) {
		l.entries[key] = entry
		return false, entry.blockedUntil.Sub(now)
	}
	entry.blockedUntil = time.Time{}
	if !entry.windowStart.IsZero() && now.Sub(entry.windowStart) > l.window {
		entry.failures = 0
		entry.windowStart = time.Time{}
	}
	l.entries[key] = entry
	return true, 0
}

func (l *loginRateLimiter) RegisterFailure(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.maybeCleanupLocked(now)

	entry := l.entries[key]
	if entry.windowStart.IsZero() || now.Sub(entry.windowStart) > l.window {
		entry.failures = 0
		entry.windowStart = now
	}
	entry.failures++
	entry.lastSeen = now
	if entry.failures >= l.maxFailures {
		entry.blockedUntil = now.Add(l.blockedFor)
		entry.failures = 0
		entry.windowStart = time.Time{}
	}
	l.entries[key] = entry
}

func (l *loginRateLimiter) Reset(key string) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *loginRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}
