package rate

import (
	"sync"
	"time"
)

// Limiter bounds how often a single client may create entries.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// MemoryLimiter is a fixed-window in-memory limiter. The window resets
// fully on expiry; precision is not worth more bookkeeping for a
// single-action endpoint.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (m *MemoryLimiter) Allow(key string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 0, resetAt: now.Add(m.window)}
		m.buckets[key] = b
	}

	if b.count >= m.limit {
		return false, time.Until(b.resetAt)
	}

	b.count++
	return true, time.Until(b.resetAt)
}
