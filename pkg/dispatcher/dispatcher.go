// Package dispatcher processes each comment exactly once: it resolves the
// comment, executes the decision through the gateway and records the outcome.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"igdmbot/pkg/config"
	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/resolver"
	"igdmbot/pkg/storage"
)

// Messenger is the outbound half of the gateway.
type Messenger interface {
	SendDirectMessage(ctx context.Context, recipientID, text string) error
	PostPublicReply(ctx context.Context, postID, commentID, text string) error
}

// Pacer spaces outbound calls and tracks the direct message budget.
type Pacer interface {
	BeforeCall(ctx context.Context) error
	SignalRateLimited()
	AllowDirectMessage() bool
}

// Invalidator is told when the gateway rejects the session.
type Invalidator interface {
	Invalidate()
}

// Outcome describes what happened to one comment.
type Outcome struct {
	CommentID string
	Username  string
	Decision  resolver.Decision
	Action    models.Action
	Keyword   string

	// Skipped is set when the comment had already been processed.
	Skipped bool
	// Shared is set when a concurrent call for the same id did the work.
	Shared bool
	// AuthLost is set when the gateway rejected the session. Callers abort
	// the current cycle.
	AuthLost bool
	// GatewayErr is the last gateway error, if any.
	GatewayErr error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithInvalidator sets the component invalidated on authentication errors.
func WithInvalidator(inv Invalidator) Option {
	return func(d *Dispatcher) { d.auth = inv }
}

// WithObserver registers fn to be called once per executed outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, fn) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store     storage.Store
	gateway   Messenger
	pacer     Pacer
	auth      Invalidator
	logger    logger.Logger
	observers []func(Outcome)
	now       func() time.Time

	inflight singleflight.Group
}

// New returns a dispatcher writing to store and sending through gw.
func New(store storage.Store, gw Messenger, pacer Pacer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		gateway: gw,
		pacer:   pacer,
		logger:  logger.GetLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithField("component", "dispatcher")
	return d
}

// Dispatch processes c under snap. Concurrent calls for the same comment id
// collapse into one execution; later calls for an id already in the store
// return a Skipped outcome without touching the gateway.
//
// An error means the comment was not recorded and may be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, c models.Comment, snap *config.Config) (Outcome, error) {
	if c.ID == "" {
		return Outcome{}, errors.New("dispatcher: comment id is required")
	}

	ran := false
	v, err, _ := d.inflight.Do(c.ID, func() (interface{}, error) {
		ran = true
		return d.dispatch(ctx, c, snap)
	})
	out, _ := v.(Outcome)
	if !ran {
		out.Shared = true
	}
	return out, err
}

func (d *Dispatcher) dispatch(ctx context.Context, c models.Comment, snap *config.Config) (Outcome, error) {
	out := Outcome{CommentID: c.ID, Username: c.AuthorUsername}

	processed, err := d.store.IsProcessed(ctx, c.ID)
	if err != nil {
		return out, fmt.Errorf("check comment %s: %w", c.ID, err)
	}
	if processed {
		out.Skipped = true
		d.logger.WithField("comment_id", c.ID).Debug("Comment already processed")
		return out, nil
	}

	decision := resolver.Resolve(c, snap)
	out.Decision = decision

	switch decision.Kind {
	case resolver.SendDirectMessage:
		err = d.directMessage(ctx, c, snap, decision, &out)
	case resolver.PostPublicReply:
		err = d.encourage(ctx, c, snap, decision, &out)
	default:
		out.Action = decision.Reason
	}
	if err != nil {
		return out, err
	}
	if out.Action != models.ActionNoKeywordMatch && out.Action != models.ActionPostNotMonitored {
		out.Keyword = decision.RecordedKeyword()
	}

	if err := d.record(ctx, c, out); err != nil {
		return out, err
	}
	for _, fn := range d.observers {
		fn(out)
	}
	return out, nil
}

// directMessage sends the DM and falls back to one public reply when the
// message cannot be delivered.
func (d *Dispatcher) directMessage(ctx context.Context, c models.Comment, snap *config.Config, decision resolver.Decision, out *Outcome) error {
	failed := models.ActionDirectDMFailed

	switch {
	case !snap.Messages.EnableDirectDM:
		failed = models.ActionEncourageReplyFailed
	case !d.pacer.AllowDirectMessage():
		d.logger.WithField("comment_id", c.ID).Warn("Hourly direct message cap reached, replying publicly instead")
		failed = models.ActionDirectDMRateCapped
	default:
		text := resolver.MessageText(decision, c, snap.Messages)
		sent, err := d.send(ctx, c, models.MessageKindDirect, text, func(ctx context.Context) error {
			return d.gateway.SendDirectMessage(ctx, c.AuthorID, text)
		})
		if err != nil {
			return err
		}
		if sent.err == nil {
			out.Action = decision.SuccessAction()
			return nil
		}
		d.noteGatewayError(c, sent.err, out)
		if out.AuthLost {
			// The reply would be rejected the same way.
			out.Action = failed
			return nil
		}
	}

	fallback := decision.Fallback()
	out.Decision = fallback
	text := resolver.MessageText(fallback, c, snap.Messages)
	reply, err := d.send(ctx, c, models.MessageKindReply, text, func(ctx context.Context) error {
		return d.gateway.PostPublicReply(ctx, c.PostID, c.ID, text)
	})
	if err != nil {
		return err
	}
	if reply.err != nil {
		d.noteGatewayError(c, reply.err, out)
		out.Action = failed
		return nil
	}
	out.Action = fallback.SuccessAction()
	return nil
}

func (d *Dispatcher) encourage(ctx context.Context, c models.Comment, snap *config.Config, decision resolver.Decision, out *Outcome) error {
	text := resolver.MessageText(decision, c, snap.Messages)
	reply, err := d.send(ctx, c, models.MessageKindReply, text, func(ctx context.Context) error {
		return d.gateway.PostPublicReply(ctx, c.PostID, c.ID, text)
	})
	if err != nil {
		return err
	}
	if reply.err != nil {
		d.noteGatewayError(c, reply.err, out)
		out.Action = models.ActionEncourageReplyFailed
		return nil
	}
	out.Action = decision.SuccessAction()
	return nil
}

// attempt is the result of one outbound call. err is the gateway error.
type attempt struct {
	err error
}

// send paces and performs one outbound call and logs it. A returned error
// aborts the dispatch without recording: the context was cancelled or the
// audit log could not be written.
func (d *Dispatcher) send(ctx context.Context, c models.Comment, kind models.MessageKind, text string, call func(context.Context) error) (attempt, error) {
	if err := d.pacer.BeforeCall(ctx); err != nil {
		return attempt{}, err
	}
	callErr := call(ctx)
	if callErr != nil && ctx.Err() != nil {
		return attempt{}, ctx.Err()
	}

	msg := models.SentMessage{
		CommentID:         c.ID,
		RecipientID:       c.AuthorID,
		RecipientUsername: c.AuthorUsername,
		Kind:              kind,
		Text:              text,
		Success:           callErr == nil,
		SentAt:            d.now(),
	}
	if callErr != nil {
		msg.Error = callErr.Error()
	}
	if err := d.store.LogSentMessage(ctx, msg); err != nil {
		return attempt{}, fmt.Errorf("log sent message for %s: %w", c.ID, err)
	}
	return attempt{err: callErr}, nil
}

func (d *Dispatcher) noteGatewayError(c models.Comment, err error, out *Outcome) {
	out.GatewayErr = err
	kind := igerrors.Classify(err)

	log := d.logger.WithError(err).WithFields(map[string]interface{}{
		"comment_id": c.ID,
		"error_kind": string(kind),
	})

	switch {
	case kind == igerrors.ErrorTypeRateLimit:
		d.pacer.SignalRateLimited()
		log.Warn("Gateway rate limited outbound call")
	case kind == igerrors.ErrorTypeInvalidCredentials || kind == igerrors.ErrorTypeChallengeRequired:
		out.AuthLost = true
		if d.auth != nil {
			d.auth.Invalidate()
		}
		log.WithField("remediation", igerrors.Remediation(kind)).Error("Gateway rejected the session")
	default:
		log.Warn("Outbound call failed")
	}
}

func (d *Dispatcher) record(ctx context.Context, c models.Comment, out Outcome) error {
	rec := models.ProcessedComment{
		CommentID:      c.ID,
		PostID:         c.PostID,
		AuthorID:       c.AuthorID,
		AuthorUsername: c.AuthorUsername,
		Text:           c.Text,
		Action:         out.Action,
		ProcessedAt:    d.now(),
	}
	if out.Keyword != "" {
		kw := out.Keyword
		rec.MatchedKeyword = &kw
	}

	inserted, err := d.store.RecordProcessed(ctx, rec)
	if err != nil {
		return fmt.Errorf("record comment %s: %w", c.ID, err)
	}
	if !inserted {
		d.logger.WithField("comment_id", c.ID).Warn("Comment was recorded by another process")
	}
	logger.LogCommentProcessed(d.logger, c.ID, c.AuthorUsername, string(out.Action), out.Keyword)
	return nil
}
