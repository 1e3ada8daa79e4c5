package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep advances the clock instead of blocking and records every wait.
type recorder struct {
	clock  *fakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	r.clock.Advance(d)
	return nil
}

func (r *recorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, d := range r.sleeps {
		sum += d
	}
	return sum
}

func TestTokenBucket(t *testing.T) {
	clk := newFakeClock()
	tb := NewTokenBucket(5, time.Second)
	tb.now = clk.Now
	tb.lastRefill = clk.Now()

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "token %d", i+1)
	}
	assert.False(t, tb.Allow())

	clk.Advance(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clk.Advance(time.Hour)
	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow())
	}
	assert.False(t, tb.Allow(), "refill never exceeds capacity")

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestTokenBucketWait(t *testing.T) {
	clk := newFakeClock()
	rec := &recorder{clock: clk}
	tb := NewTokenBucket(1, 2*time.Second)
	tb.now = clk.Now
	tb.lastRefill = clk.Now()
	tb.sleep = rec.Sleep

	require.NoError(t, tb.Wait(context.Background()))
	require.NoError(t, tb.Wait(context.Background()))
	assert.Equal(t, 2*time.Second, rec.total())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.Canceled)
}

func TestSlidingWindow(t *testing.T) {
	clk := newFakeClock()
	sw := NewSlidingWindow(3, time.Second)
	sw.now = clk.Now

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow(), "request %d", i+1)
	}
	assert.False(t, sw.Allow())
	assert.Equal(t, 3, sw.Count())

	clk.Advance(time.Second)
	assert.True(t, sw.Allow())
	assert.Equal(t, 1, sw.Count())

	sw.Reset()
	assert.Zero(t, sw.Count())
}

func TestSlidingWindowZeroCap(t *testing.T) {
	assert.False(t, NewSlidingWindow(0, time.Hour).Allow())
	assert.False(t, NewSlidingWindow(-1, time.Hour).Allow())
}

func TestKeyedLimiter(t *testing.T) {
	clk := newFakeClock()
	rl := NewKeyedLimiter(2, time.Minute, 5*time.Minute)
	rl.now = clk.Now

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "keys are independent")

	clk.Advance(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"), "new window")

	clk.Advance(10 * time.Minute)
	assert.True(t, rl.Allow(""))
	assert.Equal(t, 1, rl.Len(), "idle keys evicted")
}

func testRateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         100,
		MinDelay:          time.Second,
		MaxDelay:          3 * time.Second,
		ItemMinDelay:      2 * time.Second,
		ItemMaxDelay:      5 * time.Second,
		Backoff:           30 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2,
		MaxDMsPerHour:     2,
	}
}

func newTestGovernor(cfg config.RateLimitConfig, r float64) (*Governor, *recorder, *fakeClock) {
	clk := newFakeClock()
	rec := &recorder{clock: clk}
	g := NewGovernor(cfg,
		WithClock(clk.Now),
		WithSleep(rec.Sleep),
		WithRand(func() float64 { return r }),
		WithGovernorLogger(logger.NewNopLogger()),
	)
	return g, rec, clk
}

func TestGovernorBeforeCallJitter(t *testing.T) {
	g, rec, _ := newTestGovernor(testRateConfig(), 0.5)

	require.NoError(t, g.BeforeCall(context.Background()))
	assert.Equal(t, 2*time.Second, rec.total())

	require.NoError(t, g.Pause(context.Background()))
	assert.Equal(t, 2*time.Second+3500*time.Millisecond, rec.total())
}

func TestGovernorElevatedBackoff(t *testing.T) {
	g, rec, _ := newTestGovernor(testRateConfig(), 0)

	g.SignalRateLimited()
	assert.Equal(t, 30*time.Second, g.Status().ElevatedBackoff)
	g.SignalRateLimited()
	assert.Equal(t, time.Minute, g.Status().ElevatedBackoff)
	g.SignalRateLimited()
	g.SignalRateLimited()
	assert.Equal(t, 2*time.Minute, g.Status().ElevatedBackoff, "capped at max backoff")

	require.NoError(t, g.BeforeCall(context.Background()))
	assert.Equal(t, time.Second+2*time.Minute, rec.total())

	g.ResetCycle()
	assert.Zero(t, g.Status().ElevatedBackoff)
	assert.Zero(t, g.Status().Signals)
}

func TestGovernorBackoffExpiresWithoutCycles(t *testing.T) {
	g, rec, clk := newTestGovernor(testRateConfig(), 0)

	g.SignalRateLimited()
	clk.Advance(time.Minute)
	require.NoError(t, g.BeforeCall(context.Background()))
	assert.Equal(t, time.Second+30*time.Second, rec.total(), "still elevated inside the quiet period")

	clk.Advance(2 * time.Minute)
	require.NoError(t, g.BeforeCall(context.Background()))
	assert.Equal(t, time.Second+30*time.Second+time.Second, rec.total())
	assert.Zero(t, g.Status().ElevatedBackoff)
	assert.Zero(t, g.Status().Signals)

	g.SignalRateLimited()
	assert.Equal(t, 30*time.Second, g.Status().ElevatedBackoff, "growth restarts after expiry")
}

func TestGovernorTokenBucketCapsCalls(t *testing.T) {
	cfg := testRateConfig()
	cfg.MinDelay, cfg.MaxDelay = 0, 0
	cfg.RequestsPerMinute = 6
	cfg.BurstSize = 1
	g, rec, _ := newTestGovernor(cfg, 0)

	require.NoError(t, g.BeforeCall(context.Background()))
	require.NoError(t, g.BeforeCall(context.Background()))
	assert.Equal(t, 10*time.Second, rec.total())
}

func TestGovernorDirectMessageCap(t *testing.T) {
	g, _, clk := newTestGovernor(testRateConfig(), 0)

	assert.True(t, g.AllowDirectMessage())
	assert.True(t, g.AllowDirectMessage())
	assert.False(t, g.AllowDirectMessage())
	assert.Equal(t, 2, g.Status().DMsLastHour)

	clk.Advance(time.Hour)
	assert.True(t, g.AllowDirectMessage())

	cfg := testRateConfig()
	cfg.MaxDMsPerHour = 0
	unlimited, _, _ := newTestGovernor(cfg, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.AllowDirectMessage())
	}
}

func TestGovernorHonoursContext(t *testing.T) {
	g, _, _ := newTestGovernor(testRateConfig(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.BeforeCall(ctx), context.Canceled)
	assert.ErrorIs(t, g.Pause(ctx), context.Canceled)
}

func TestGovernorSignalHook(t *testing.T) {
	var got []time.Duration
	clk := newFakeClock()
	g := NewGovernor(testRateConfig(),
		WithClock(clk.Now),
		WithSleep((&recorder{clock: clk}).Sleep),
		WithGovernorLogger(logger.NewNopLogger()),
		WithSignalHook(func(d time.Duration) { got = append(got, d) }),
	)

	g.SignalRateLimited()
	g.SignalRateLimited()
	assert.Equal(t, []time.Duration{30 * time.Second, time.Minute}, got)
}
