package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/retry"
)

// Governor paces every outbound gateway call. Each call waits a random
// delay plus any elevated backoff, then takes a token from the per-minute
// bucket. Direct messages are additionally capped per hour.
type Governor struct {
	cfg     config.RateLimitConfig
	bucket  *TokenBucket
	dms     *SlidingWindow
	backoff retry.Backoff
	sleep   SleepFunc
	rand    func() float64
	now     func() time.Time
	logger  logger.Logger
	onLimit func(elevated time.Duration)

	mu         sync.Mutex
	signals    int
	elevated   time.Duration
	lastSignal time.Time
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithSleep replaces the wait function, for tests.
func WithSleep(fn SleepFunc) GovernorOption {
	return func(g *Governor) { g.sleep = fn }
}

// WithRand replaces the jitter source, for tests.
func WithRand(fn func() float64) GovernorOption {
	return func(g *Governor) { g.rand = fn }
}

// WithClock replaces time.Now in the governor, the bucket and the hourly
// window.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) {
		g.now = now
		g.bucket.now = now
		g.bucket.lastRefill = now()
		g.dms.now = now
	}
}

// WithGovernorLogger sets the logger.
func WithGovernorLogger(l logger.Logger) GovernorOption {
	return func(g *Governor) { g.logger = l }
}

// WithSignalHook calls fn after every SignalRateLimited with the new
// elevated backoff.
func WithSignalHook(fn func(elevated time.Duration)) GovernorOption {
	return func(g *Governor) { g.onLimit = fn }
}

// NewGovernor builds a governor from the rate limit settings.
func NewGovernor(cfg config.RateLimitConfig, opts ...GovernorOption) *Governor {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}

	g := &Governor{
		cfg:     cfg,
		bucket:  NewTokenBucket(burst, time.Minute/time.Duration(rpm)),
		dms:     NewSlidingWindow(cfg.MaxDMsPerHour, time.Hour),
		backoff: retry.FromRateLimit(cfg),
		sleep:   retry.Sleep,
		rand:    rand.Float64,
		now:     time.Now,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.bucket.sleep = g.sleep
	return g
}

// BeforeCall waits before one outbound call.
func (g *Governor) BeforeCall(ctx context.Context) error {
	g.mu.Lock()
	delay := g.jitter(g.cfg.MinDelay, g.cfg.MaxDelay) + g.currentLocked()
	g.mu.Unlock()

	if err := g.sleep(ctx, delay); err != nil {
		return err
	}
	return g.bucket.Wait(ctx)
}

// Pause waits between two items (comments or posts).
func (g *Governor) Pause(ctx context.Context) error {
	g.mu.Lock()
	delay := g.jitter(g.cfg.ItemMinDelay, g.cfg.ItemMaxDelay)
	g.mu.Unlock()
	return g.sleep(ctx, delay)
}

// SignalRateLimited raises the backoff applied to every following call
// until ResetCycle, or until a quiet period of max_backoff (at least the
// elevated delay itself) passes without another signal. Consecutive signals
// grow it exponentially.
func (g *Governor) SignalRateLimited() {
	g.mu.Lock()
	g.currentLocked()
	g.signals++
	g.elevated = g.backoff.Delay(g.signals)
	g.lastSignal = g.now()
	elevated := g.elevated
	g.mu.Unlock()

	logger.LogRateLimit(g.logger, "gateway", elevated)
	if g.onLimit != nil {
		g.onLimit(elevated)
	}
}

// ResetCycle clears the elevated backoff at the start of a new cycle.
func (g *Governor) ResetCycle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signals = 0
	g.elevated = 0
}

// currentLocked returns the elevated backoff, first clearing it when the
// quiet period since the last signal has passed. Callers hold mu.
func (g *Governor) currentLocked() time.Duration {
	if g.elevated <= 0 {
		return 0
	}
	if g.now().Sub(g.lastSignal) >= max(g.cfg.MaxBackoff, g.elevated) {
		g.signals = 0
		g.elevated = 0
	}
	return g.elevated
}

// AllowDirectMessage consumes one slot of the hourly direct message cap.
// A cap of zero or less disables the check.
func (g *Governor) AllowDirectMessage() bool {
	if g.cfg.MaxDMsPerHour <= 0 {
		return true
	}
	return g.dms.Allow()
}

// GovernorStatus is a point-in-time view for status output.
type GovernorStatus struct {
	ElevatedBackoff time.Duration `json:"elevated_backoff"`
	Signals         int           `json:"rate_limit_signals"`
	DMsLastHour     int           `json:"dms_last_hour"`
	MaxDMsPerHour   int           `json:"max_dms_per_hour"`
}

// Status returns the current governor state.
func (g *Governor) Status() GovernorStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GovernorStatus{
		ElevatedBackoff: g.currentLocked(),
		Signals:         g.signals,
		DMsLastHour:     g.dms.Count(),
		MaxDMsPerHour:   g.cfg.MaxDMsPerHour,
	}
}

func (g *Governor) jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(g.rand()*float64(max-min))
}
