package ratelimit

import (
	"sync"
	"time"
)

type rateBucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// KeyedLimiter is a per-key fixed-window limiter. Idle keys are evicted
// after ttl.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	ttl     time.Duration
	buckets map[string]*rateBucket
	now     func() time.Time
}

// NewKeyedLimiter creates a per-key fixed-window limiter.
func NewKeyedLimiter(limit int, window, ttl time.Duration) *KeyedLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &KeyedLimiter{
		limit:   limit,
		window:  window,
		ttl:     ttl,
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// Allow returns true if the request is permitted for the key.
func (rl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, bucket := range rl.buckets {
		if now.Sub(bucket.lastSeen) > rl.ttl {
			delete(rl.buckets, k)
		}
	}

	bucket, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &rateBucket{windowStart: now, count: 1, lastSeen: now}
		return true
	}

	bucket.lastSeen = now
	if now.Sub(bucket.windowStart) >= rl.window {
		bucket.windowStart = now
		bucket.count = 1
		return true
	}

	if bucket.count >= rl.limit {
		return false
	}

	bucket.count++
	return true
}

// Len returns the number of tracked keys.
func (rl *KeyedLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
