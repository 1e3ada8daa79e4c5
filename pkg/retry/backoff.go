package retry

import (
	"context"
	"math/rand"
	"time"

	"igdmbot/pkg/config"
)

// Backoff maps a 1-based attempt number to the pause before the next try.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential multiplies Base by Factor for every attempt after the first,
// caps the result at Max and spreads it by up to ±Jitter of itself.
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64

	// Rand returns a value in [0,1). math/rand is used when nil.
	Rand func() float64
}

// Standard is the backoff used for calls that have no configured schedule.
func Standard() *Exponential {
	return &Exponential{
		Base:   time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: 0.1,
	}
}

// FromRateLimit builds the schedule applied after Instagram throttles the
// account. It carries no jitter so the elevated delays match the config.
func FromRateLimit(cfg config.RateLimitConfig) *Exponential {
	return &Exponential{
		Base:   cfg.Backoff,
		Max:    cfg.MaxBackoff,
		Factor: cfg.BackoffMultiplier,
	}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	factor := e.Factor
	if factor < 1 {
		factor = 2
	}

	d := float64(e.Base)
	for i := 1; i < attempt; i++ {
		d *= factor
		if e.Max > 0 && d >= float64(e.Max) {
			break
		}
	}
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}

	if e.Jitter > 0 {
		d += d * e.Jitter * (2*e.rand() - 1)
	}
	return time.Duration(max(d, 0))
}

func (e *Exponential) rand() float64 {
	if e.Rand != nil {
		return e.Rand()
	}
	return rand.Float64()
}

// Fixed waits the same duration before every retry.
type Fixed time.Duration

func (f Fixed) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(f)
}

// Sleep pauses for d, returning early with ctx's error when it is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
