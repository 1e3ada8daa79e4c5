package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/config"
	errs "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
)

func TestExponentialDelay(t *testing.T) {
	backoff := &Exponential{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{500, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	low := &Exponential{Base: time.Second, Factor: 2, Jitter: 0.5, Rand: func() float64 { return 0 }}
	high := &Exponential{Base: time.Second, Factor: 2, Jitter: 0.5, Rand: func() float64 { return 0.999999 }}

	assert.Equal(t, 500*time.Millisecond, low.Delay(1))
	assert.InDelta(t, float64(1500*time.Millisecond), float64(high.Delay(1)), float64(time.Millisecond))
}

func TestFromRateLimit(t *testing.T) {
	b := FromRateLimit(config.RateLimitConfig{
		Backoff:           30 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 3,
	})

	assert.Equal(t, 30*time.Second, b.Delay(1))
	assert.Equal(t, 90*time.Second, b.Delay(2))
	assert.Equal(t, 270*time.Second, b.Delay(3))
	assert.Equal(t, 5*time.Minute, b.Delay(4))
}

func quick(attempts int) Policy {
	return Policy{
		Name:     "test",
		Attempts: attempts,
		Backoff:  Fixed(time.Millisecond),
		Logger:   logger.NewNopLogger(),
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quick(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.ErrorTypeRateLimit, "slow down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quick(5), func(ctx context.Context) error {
		calls++
		return errs.New(errs.ErrorTypeInvalidCredentials, "bad token")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.ErrorTypeInvalidCredentials, errs.TypeOf(err))
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	var retried []int
	rec := logger.NewRecorder()
	p := quick(3)
	p.Logger = rec
	p.OnRetry = func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errs.New(errs.ErrorTypeGatewayUnavailable, "502")
	})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, errs.ErrorTypeGatewayUnavailable, errs.TypeOf(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried, "no pause after the final attempt")

	giveUp, ok := rec.Find("Giving up")
	require.True(t, ok)
	assert.Equal(t, "test", giveUp.Fields["operation"])
	assert.Equal(t, 3, giveUp.Fields["attempts"])
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := quick(0)
	p.Backoff = Fixed(time.Hour)

	calls := 0
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		cancel()
		return errs.New(errs.ErrorTypeRateLimit, "slow down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(errs.New(errs.ErrorTypeRateLimit, "x")))
	assert.False(t, Retryable(errs.New(errs.ErrorTypeChallengeRequired, "x")))
	assert.False(t, Retryable(errors.New("something odd")))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
