package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
)

// ErrExhausted is wrapped around the last failure once every attempt of a
// Policy has been used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Op is a single attempt of a retried call.
type Op func(ctx context.Context) error

// Policy controls how Do repeats an Op. The zero value retries until ctx is
// done using the Standard backoff and Retryable.
type Policy struct {
	// Name labels the operation in log lines.
	Name string
	// Attempts bounds the number of calls. Zero means no bound.
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	// OnRetry runs before every pause.
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// Retryable retries throttling and transport failures. Credential problems,
// challenges and cancellations are final.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errs.IsRetryable(errs.Classify(err))
}

func (p *Policy) fill() {
	if p.Name == "" {
		p.Name = "operation"
	}
	if p.Backoff == nil {
		p.Backoff = Standard()
	}
	if p.Retryable == nil {
		p.Retryable = Retryable
	}
	if p.Logger == nil {
		p.Logger = logger.GetLogger()
	}
}

// Do calls op until it succeeds, fails with an error p does not retry, runs
// out of attempts or ctx is done. No pause follows the final attempt.
func Do(ctx context.Context, p Policy, op Op) error {
	p.fill()
	log := p.Logger.WithField("operation", p.Name)

	var last error
	for attempt := 1; p.Attempts == 0 || attempt <= p.Attempts; attempt++ {
		if last = op(ctx); last == nil {
			if attempt > 1 {
				log.WithField("attempt", attempt).Debug("Succeeded after retry")
			}
			return nil
		}
		if !p.Retryable(last) {
			return last
		}
		if attempt == p.Attempts {
			break
		}

		delay := p.Backoff.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, delay)
		}
		log.WithFields(map[string]interface{}{
			"attempt":  attempt,
			"error":    last.Error(),
			"delay_ms": delay.Milliseconds(),
		}).Warn("Retrying")

		if err := Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry cancelled: %w", p.Name, err)
		}
	}

	log.WithError(last).WithField("attempts", p.Attempts).Error("Giving up")
	return fmt.Errorf("%s: %w after %d attempts: %w", p.Name, ErrExhausted, p.Attempts, last)
}
