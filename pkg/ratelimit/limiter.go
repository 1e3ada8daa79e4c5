package ratelimit

import (
	"context"
	"sync"
	"time"

	"igdmbot/pkg/retry"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// minWait keeps Wait from spinning when float rounding leaves a token just
// short of whole.
const minWait = 10 * time.Millisecond

// TokenBucket paces outbound Instagram calls. It holds up to capacity tokens
// and earns one back every interval.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	interval   time.Duration
	lastRefill time.Time
	now        func() time.Time
	sleep      SleepFunc
}

func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	capacity = max(capacity, 1)
	if interval <= 0 {
		interval = time.Second
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		interval:   interval,
		lastRefill: time.Now(),
		now:        time.Now,
		sleep:      retry.Sleep,
	}
}

// take spends a token if one is available. Otherwise it reports how long
// until the next one is earned.
func (tb *TokenBucket) take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+float64(elapsed)/float64(tb.interval))
		tb.lastRefill = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	return false, max(time.Duration((1-tb.tokens)*float64(tb.interval)), minWait)
}

// Allow spends a token without waiting.
func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.take()
	return ok
}

// Wait blocks until a token is spent or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := tb.take()
		if ok {
			return nil
		}
		if err := tb.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
	tb.mu.Unlock()
}

// SlidingWindow caps events over a trailing window. The governor uses it for
// the hourly direct message cap, so it never blocks: a full window is
// reported to the caller, who records the comment as rate capped.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []time.Time
	now    func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	limit = max(limit, 0)
	return &SlidingWindow{
		limit:  limit,
		window: window,
		events: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// expire drops events at or before now-window. Callers hold mu.
func (sw *SlidingWindow) expire(now time.Time) {
	cutoff := now.Add(-sw.window)
	n := 0
	for n < len(sw.events) && !sw.events[n].After(cutoff) {
		n++
	}
	sw.events = append(sw.events[:0], sw.events[n:]...)
}

// Allow records an event when the window has room.
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.expire(now)
	if len(sw.events) >= sw.limit {
		return false
	}
	sw.events = append(sw.events, now)
	return true
}

// Count returns the number of events inside the window.
func (sw *SlidingWindow) Count() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.expire(sw.now())
	return len(sw.events)
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	sw.events = sw.events[:0]
	sw.mu.Unlock()
}
