// Package rate throttles client-side mutations before they reach the API.
package rate

import (
	"sync"
	"time"
)

// Limiter decides whether another action under key fits into the current
// window. When it does not, the returned duration is the wait until reset.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
	window  time.Duration
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow counts one action for key. A non-positive limit never throttles.
func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) || b.window != window {
		b = &bucket{resetAt: now.Add(window), window: window}
		m.buckets[key] = b
	}

	if b.count >= limit {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, b.resetAt.Sub(now)
}

// Key builds the bucket key for an action performed by a user.
func Key(action, username string) string {
	return action + ":user:" + username
}
