// Package ratelimit bounds how many commands a single operator can issue
// per minute, so one misbehaving script cannot monopolize the worker pool.
package ratelimit

import (
	"sync"
	"time"
)

// window is the sliding window size
const window = time.Minute

// Limiter is a per-user sliding window limiter. A limit of zero or less
// disables limiting entirely
type Limiter struct {
	mu     sync.Mutex
	limit  int
	issued map[string][]time.Time // user id -> command timestamps in window
}

// New creates a limiter allowing limit commands per user per minute
func New(limit int) *Limiter {
	return &Limiter{
		limit:  limit,
		issued: make(map[string][]time.Time),
	}
}

// Allow records one command attempt for the user and reports whether it may
// proceed
func (l *Limiter) Allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(userID, time.Now())
	if len(recent) >= l.limit {
		return false
	}
	l.issued[userID] = append(recent, time.Now())
	return true
}

// Remaining reports how many commands the user has left in the current
// window, or -1 when limiting is disabled
func (l *Limiter) Remaining(userID string) int {
	if l.limit <= 0 {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.limit - len(l.prune(userID, time.Now()))
	if left < 0 {
		return 0
	}
	return left
}

// Reset forgets the user's history
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.issued, userID)
}

// prune drops timestamps that fell out of the window. Callers hold the lock
func (l *Limiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	recent := l.issued[userID][:0:0]
	for _, ts := range l.issued[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(l.issued, userID)
	} else {
		l.issued[userID] = recent
	}
	return recent
}
