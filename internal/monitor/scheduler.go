package monitor

import (
	"context"
	"errors"
	"time"

	"igdmbot/pkg/logger"
)

// CycleRunner runs one cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Scheduler runs cycles back to back on a fixed interval from a single
// goroutine. A cycle that outlasts the interval swallows the ticks it
// missed; cycles never overlap.
type Scheduler struct {
	runner   CycleRunner
	interval func() time.Duration
	logger   logger.Logger
}

// NewScheduler returns a scheduler. interval is consulted after every cycle
// so configuration changes take effect on the next tick.
func NewScheduler(runner CycleRunner, interval func() time.Duration, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   log.WithField("component", "scheduler"),
	}
}

// Run blocks until ctx is done. The first cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	current := s.currentInterval()
	logger.LogComponentStart("scheduler", map[string]interface{}{
		"interval": current.String(),
	})

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		if next := s.currentInterval(); next != current {
			s.logger.WithField("interval", next.String()).Info("Check interval changed")
			current = next
			ticker.Reset(current)
		}

		select {
		case <-ctx.Done():
			logger.LogComponentStop("scheduler", "context cancelled")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.runner.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrAuthFailed):
		s.logger.WithError(err).Error("Cycle aborted: authentication failed, retrying next cycle")
	default:
		s.logger.WithError(err).Warn("Cycle aborted")
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	d := s.interval()
	if d <= 0 {
		d = time.Minute
	}
	return d
}
