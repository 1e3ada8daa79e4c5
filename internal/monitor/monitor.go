// Package monitor runs polling cycles: authenticate, fetch recent posts,
// select the monitored ones, and dispatch their comments.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"igdmbot/internal/metrics"
	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	"igdmbot/pkg/dispatcher"
	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/resolver"
	"igdmbot/pkg/session"
)

// ErrAuthFailed aborts a cycle when no usable session is available.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator is the part of auth.Authenticator a cycle needs.
type Authenticator interface {
	Authenticate(ctx context.Context) auth.Result
	IsValid(ctx context.Context) bool
	Invalidate()
	Session() *session.Session
}

// Source fetches posts and comments.
type Source interface {
	FetchRecentPosts(ctx context.Context, limit int) ([]models.Post, error)
	FetchComments(ctx context.Context, postID string) ([]models.Comment, error)
}

// Dispatcher processes one comment.
type Dispatcher interface {
	Dispatch(ctx context.Context, c models.Comment, snap *config.Config) (dispatcher.Outcome, error)
}

// Pacer spaces remote calls and items.
type Pacer interface {
	BeforeCall(ctx context.Context) error
	Pause(ctx context.Context) error
	SignalRateLimited()
	ResetCycle()
}

// Snapshotter hands out per-cycle configuration copies.
type Snapshotter interface {
	Snapshot() *config.Config
}

// Report summarizes one cycle.
type Report struct {
	ID             string                `json:"id"`
	Started        time.Time             `json:"started"`
	Finished       time.Time             `json:"finished"`
	PostsFetched   int                   `json:"posts_fetched"`
	PostsMonitored int                   `json:"posts_monitored"`
	CommentsSeen   int                   `json:"comments_seen"`
	Dispatched     int                   `json:"dispatched"`
	Skipped        int                   `json:"skipped"`
	Failures       int                   `json:"failures"`
	Actions        map[models.Action]int `json:"actions,omitempty"`
	AuthFailed     bool                  `json:"auth_failed,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Duration is the wall time of the cycle.
func (r Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records cycle metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) { m.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithCycleHooks calls onStart with the cycle id before a cycle and onDone
// with its report afterwards. Either may be nil.
func WithCycleHooks(onStart func(id string), onDone func(Report)) Option {
	return func(m *Monitor) {
		m.onStart = onStart
		m.onDone = onDone
	}
}

// Monitor runs cycles. RunCycle must not be called concurrently; the
// Scheduler guarantees that.
type Monitor struct {
	config     Snapshotter
	auth       Authenticator
	source     Source
	dispatcher Dispatcher
	pacer      Pacer
	metrics    *metrics.Collector
	logger     logger.Logger
	now        func() time.Time
	onStart    func(id string)
	onDone     func(Report)

	mu   sync.RWMutex
	last *Report
}

// New returns a Monitor.
func New(cfg Snapshotter, authn Authenticator, src Source, d Dispatcher, pacer Pacer, opts ...Option) *Monitor {
	m := &Monitor{
		config:     cfg,
		auth:       authn,
		source:     src,
		dispatcher: d,
		pacer:      pacer,
		logger:     logger.GetLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "monitor")
	return m
}

// LastReport returns the most recent cycle report, or nil.
func (m *Monitor) LastReport() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil
	}
	r := *m.last
	return &r
}

// RunCycle performs one polling pass. A returned error means the cycle was
// aborted; per-comment failures are counted in the report instead.
func (m *Monitor) RunCycle(ctx context.Context) (Report, error) {
	r := Report{
		ID:      uuid.NewString(),
		Started: m.now(),
		Actions: make(map[models.Action]int),
	}
	log := m.logger.WithField("cycle_id", r.ID)
	if m.onStart != nil {
		m.onStart(r.ID)
	}

	err := m.runCycle(ctx, log, &r)
	r.Finished = m.now()
	result := "ok"
	if err != nil {
		r.Error = err.Error()
		result = "error"
		if r.AuthFailed {
			result = "auth_failed"
		}
	}
	m.metrics.Cycle(result, r.Duration())

	m.mu.Lock()
	last := r
	m.last = &last
	m.mu.Unlock()

	log.InfoWithFields("Monitoring cycle finished", map[string]interface{}{
		"posts_fetched":   r.PostsFetched,
		"posts_monitored": r.PostsMonitored,
		"comments":        r.CommentsSeen,
		"dispatched":      r.Dispatched,
		"failures":        r.Failures,
		"duration":        r.Duration(),
		"result":          result,
	})
	if m.onDone != nil {
		m.onDone(r)
	}
	return r, err
}

func (m *Monitor) runCycle(ctx context.Context, log logger.Logger, r *Report) error {
	snap := m.config.Snapshot()
	m.pacer.ResetCycle()

	if !m.auth.IsValid(ctx) {
		res := m.auth.Authenticate(ctx)
		if !res.OK() {
			r.AuthFailed = true
			return fmt.Errorf("%w: %s: %v", ErrAuthFailed, res.Reason, res.Err)
		}
	}
	self := m.auth.Session()

	if err := m.pacer.BeforeCall(ctx); err != nil {
		return err
	}
	posts, err := m.source.FetchRecentPosts(ctx, snap.Monitoring.MaxPostsToCheck)
	if err != nil {
		if m.gatewayFailure(err, r) {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return fmt.Errorf("fetch recent posts: %w", err)
	}
	r.PostsFetched = len(posts)

	selected := resolver.NewPostFilter(snap.Monitoring).Select(posts)
	r.PostsMonitored = len(selected)
	snap = resolver.WithMonitoredPosts(snap, selected)
	log.DebugWithFields("Selected posts", map[string]interface{}{
		"fetched":   len(posts),
		"monitored": len(selected),
	})

	for i, post := range selected {
		if i > 0 {
			if err := m.pacer.Pause(ctx); err != nil {
				return err
			}
		}
		if err := m.pacer.BeforeCall(ctx); err != nil {
			return err
		}
		comments, err := m.source.FetchComments(ctx, post.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if m.gatewayFailure(err, r) {
				return fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
			// Abandon this post; the next cycle sees its comments again.
			r.Failures++
			log.WithError(err).WithField("post_id", post.ID).Warn("Failed to fetch comments")
			continue
		}

		if err := m.dispatchAll(ctx, log, snap, self, comments, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) dispatchAll(ctx context.Context, log logger.Logger, snap *config.Config, self *session.Session, comments []models.Comment, r *Report) error {
	for _, c := range comments {
		if isOwnComment(c, self) {
			continue
		}
		r.CommentsSeen++

		out, err := m.dispatcher.Dispatch(ctx, c, snap)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.Failures++
			log.WithError(err).WithField("comment_id", c.ID).Error("Failed to dispatch comment")
			continue
		}
		if out.Skipped || out.Shared {
			r.Skipped++
			continue
		}
		r.Dispatched++
		r.Actions[out.Action]++
		if out.Action.Failed() {
			r.Failures++
		}
		if out.AuthLost {
			r.AuthFailed = true
			return fmt.Errorf("%w: %v", ErrAuthFailed, out.GatewayErr)
		}

		if performedOutbound(out.Action) {
			if err := m.pacer.Pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// gatewayFailure applies the side effects of a fetch error and reports
// whether the session was rejected.
func (m *Monitor) gatewayFailure(err error, r *Report) bool {
	switch kind := igerrors.Classify(err); {
	case kind == igerrors.ErrorTypeRateLimit:
		m.pacer.SignalRateLimited()
	case igerrors.IsAuthFailure(kind):
		m.auth.Invalidate()
		r.AuthFailed = true
		m.logger.WithError(err).WithField("remediation", igerrors.Remediation(kind)).Error("Gateway rejected the session")
		return true
	}
	return false
}

func isOwnComment(c models.Comment, self *session.Session) bool {
	if self == nil {
		return false
	}
	if self.AccountID != "" && c.AuthorID == self.AccountID {
		return true
	}
	return self.Username != "" && strings.EqualFold(c.AuthorUsername, self.Username)
}

func performedOutbound(a models.Action) bool {
	return a != models.ActionNoKeywordMatch && a != models.ActionPostNotMonitored
}
