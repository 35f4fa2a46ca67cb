package ratelimit

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a single bucket; callers hold mu.
type tokenBucket struct {
	lastRefill    time.Time
	cooldownUntil time.Time
	tokens        int
	mu            sync.Mutex
}

func (tb *tokenBucket) take(now time.Time, cfg Config) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.cooldownUntil.IsZero() {
		if now.Before(tb.cooldownUntil) {
			return false
		}
		tb.cooldownUntil = time.Time{}
		tb.tokens = cfg.Capacity
		tb.lastRefill = now
	}

	tb.refill(now, cfg)

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	if cfg.Cooldown > 0 {
		tb.cooldownUntil = now.Add(cfg.Cooldown)
	}
	return false
}

// refill adds tokens for every whole period elapsed since the last refill.
func (tb *tokenBucket) refill(now time.Time, cfg Config) {
	elapsed := now.Sub(tb.lastRefill)
	periods := int(elapsed / cfg.Period)
	if periods <= 0 {
		return
	}

	tb.tokens += periods * cfg.Refill
	if tb.tokens > cfg.Capacity {
		tb.tokens = cfg.Capacity
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(periods) * cfg.Period)
}

// MemoryBackend keeps buckets in process memory.
type MemoryBackend struct {
	buckets map[string]*tokenBucket
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend. now may be nil.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		buckets: make(map[string]*tokenBucket),
		now:     now,
	}
}

// Take implements Backend.
func (m *MemoryBackend) Take(_ context.Context, key string, cfg Config) (bool, error) {
	now := m.now()

	m.mu.RLock()
	bucket, exists := m.buckets[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		bucket, exists = m.buckets[key]
		if !exists {
			bucket = &tokenBucket{tokens: cfg.Capacity, lastRefill: now}
			m.buckets[key] = bucket
		}
		m.mu.Unlock()
	}

	return bucket.take(now, cfg), nil
}

// CleanupStale removes buckets untouched for maxAge that are not cooling down.
func (m *MemoryBackend) CleanupStale(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-maxAge)
	removed := 0

	for key, bucket := range m.buckets {
		bucket.mu.Lock()
		if bucket.lastRefill.Before(cutoff) && !now.Before(bucket.cooldownUntil) {
			delete(m.buckets, key)
			removed++
		}
		bucket.mu.Unlock()
	}

	return removed
}

// Len returns the number of tracked buckets.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}
