// Package app wires the bot's components together from one configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"igdmbot/internal/metrics"
	"igdmbot/internal/monitor"
	"igdmbot/internal/server"
	"igdmbot/internal/webhook"
	"igdmbot/internal/worker"
	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	"igdmbot/pkg/dispatcher"
	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/instagram"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/ratelimit"
	"igdmbot/pkg/resolver"
	"igdmbot/pkg/retry"
	"igdmbot/pkg/session"
	"igdmbot/pkg/storage"
	"igdmbot/pkg/ui"
	"igdmbot/pkg/ui/tui"
)

const (
	lockFileName         = "igdmbot.lock"
	tokenRefreshInterval = 24 * time.Hour

	// maxDeferredJobs bounds the webhook comments held while authentication
	// is failing. The oldest are dropped first.
	maxDeferredJobs = 1000
)

// ErrAlreadyRunning is returned by Lock when another process holds the
// data directory.
var ErrAlreadyRunning = errors.New("another igdmbot instance is already running")

// Backend is a gateway that also serves the authenticator back-ends of its
// binding.
type Backend interface {
	instagram.Gateway
	auth.SessionVerifier
}

// Options override parts of the wiring. Zero values select the production
// implementation.
type Options struct {
	Version  string
	Logger   logger.Logger
	Secrets  auth.SecretStore
	Backend  Backend
	Sessions session.Store
	Store    storage.Store
	Notifier *ui.Notifier
	// Stderr receives operator guidance such as session id instructions.
	Stderr io.Writer
	// Persist writes admin configuration changes to the runtime file.
	Persist bool
}

// App holds the wired components.
type App struct {
	config     *config.Holder
	store      storage.Store
	sessions   session.Store
	authn      *auth.Authenticator
	gateway    Backend
	governor   *ratelimit.Governor
	dispatcher *dispatcher.Dispatcher
	monitor    *monitor.Monitor
	metrics    *metrics.Collector
	notifier   *ui.Notifier
	logger     logger.Logger
	stderr     io.Writer
	version    string
	mode       string

	pool    *worker.Pool
	webhook *webhook.Handler

	deferMu  sync.Mutex
	deferred []worker.Job

	lockPath string
	lock     *flock.Flock

	dashMu    sync.RWMutex
	dashboard *tui.Dashboard
	closeOnce sync.Once
}

// New builds every component for cfg. The durable store is opened here;
// call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	a := &App{
		config:   config.NewHolder(cfg, opts.Persist),
		metrics:  metrics.New(opts.Version),
		notifier: opts.Notifier,
		logger:   log,
		stderr:   stderr,
		version:  opts.Version,
		lockPath: filepath.Join(filepath.Dir(cfg.Storage.SessionFile), lockFileName),
	}
	a.lock = flock.New(a.lockPath)

	var err error
	if a.store = opts.Store; a.store == nil {
		if a.store, err = storage.OpenSQLite(ctx, cfg.Storage.DatabasePath); err != nil {
			return nil, err
		}
	}

	if a.sessions = opts.Sessions; a.sessions == nil {
		if a.sessions, err = newSessionStore(cfg.Storage, log); err != nil {
			_ = a.store.Close()
			return nil, err
		}
	}

	secrets := opts.Secrets
	if secrets == nil {
		if ks, err := auth.NewKeyringStore(); err == nil {
			secrets = ks
		} else {
			log.WithError(err).Debug("System keyring unavailable, using configured secrets only")
		}
	}
	cred := auth.CredentialFromConfig(cfg.Instagram, secrets)
	a.mode = instagram.ModeFor(cfg.Instagram.Mode, cred.Kind)

	if a.gateway = opts.Backend; a.gateway == nil {
		gw, err := instagram.NewGateway(cfg.Instagram, a.mode, log)
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		b, ok := gw.(Backend)
		if !ok {
			_ = a.store.Close()
			return nil, fmt.Errorf("gateway for mode %q cannot verify sessions", a.mode)
		}
		a.gateway = b
	}

	a.authn = auth.NewAuthenticator(cred, a.sessions, auth.DefaultMethods(a.sessions, a.gateway),
		auth.WithRetryDelay(cfg.Auth.RetryDelay),
		auth.WithVerifyInterval(cfg.Auth.VerifyInterval),
		auth.WithVerifier(a.gateway),
		auth.WithLogger(log),
		auth.WithFailureHook(a.onAuthFailure),
	)

	a.governor = ratelimit.NewGovernor(cfg.RateLimit,
		ratelimit.WithGovernorLogger(log.WithField("component", "governor")),
		ratelimit.WithSignalHook(a.onRateLimited),
	)

	a.dispatcher = dispatcher.New(a.store, a.gateway, a.governor,
		dispatcher.WithLogger(log),
		dispatcher.WithInvalidator(a.authn),
		dispatcher.WithObserver(a.onOutcome),
	)

	a.monitor = monitor.New(a.config, &meteredAuth{Authenticator: a.authn, metrics: a.metrics}, a.gateway, a.dispatcher, a.governor,
		monitor.WithLogger(log),
		monitor.WithMetrics(a.metrics),
		monitor.WithCycleHooks(a.onCycleStart, a.onCycleDone),
	)

	if cfg.Webhook.Enabled {
		a.pool = worker.NewPool(cfg.Webhook.Workers, cfg.Webhook.QueueSize, a.handleJob, log)
		a.webhook = webhook.New(cfg.Webhook, a.pool,
			webhook.WithLogger(log),
			webhook.WithMetrics(a.metrics),
		)
	}

	return a, nil
}

// newSessionStore opens the session file, encrypted when configured.
func newSessionStore(cfg config.StorageConfig, log logger.Logger) (*session.FileStore, error) {
	opts := []session.Option{session.WithLogger(log)}
	if cfg.EncryptSession {
		pass, err := session.ResolvePassphrase(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve session passphrase: %w", err)
		}
		codec, err := session.NewEncryptedCodec(pass)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithCodec(codec))
	}
	return session.NewFileStore(cfg.SessionFile, opts...)
}

// Lock takes the single-instance lock beside the session file.
func (a *App) Lock() error {
	if err := os.MkdirAll(filepath.Dir(a.lockPath), 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Close stops background workers, releases the lock and closes the store.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.pool != nil {
			a.pool.Stop()
		}
		if a.lock.Locked() {
			if uerr := a.lock.Unlock(); uerr != nil {
				a.logger.WithError(uerr).Warn("Failed to release instance lock")
			}
		}
		err = a.store.Close()
	})
	return err
}

// Config returns the live configuration holder.
func (a *App) Config() *config.Holder { return a.config }

// Store returns the durable log.
func (a *App) Store() storage.Store { return a.store }

// Sessions returns the session store.
func (a *App) Sessions() session.Store { return a.sessions }

// Authenticator returns the session authenticator.
func (a *App) Authenticator() *auth.Authenticator { return a.authn }

// Governor returns the pacing governor.
func (a *App) Governor() *ratelimit.Governor { return a.governor }

// Monitor returns the polling monitor.
func (a *App) Monitor() *monitor.Monitor { return a.monitor }

// Metrics returns the collector.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Mode returns the gateway binding in use.
func (a *App) Mode() string { return a.mode }

// AttachDashboard routes live events to d. Pass nil to detach.
func (a *App) AttachDashboard(d *tui.Dashboard) {
	a.dashMu.Lock()
	a.dashboard = d
	a.dashMu.Unlock()
	if d != nil {
		st := a.authn.Status()
		d.UpdateAuth(st.State, st.Reason)
		d.UpdateGovernor(governorState(a.governor.Status()))
	}
}

func (a *App) dash() *tui.Dashboard {
	a.dashMu.RLock()
	defer a.dashMu.RUnlock()
	return a.dashboard
}

// Authenticate makes sure a session is available.
func (a *App) Authenticate(ctx context.Context) auth.Result {
	if a.authn.IsValid(ctx) {
		return auth.Result{State: auth.StateAuthenticated, Method: a.authn.Status().Method}
	}
	return (&meteredAuth{Authenticator: a.authn, metrics: a.metrics}).Authenticate(ctx)
}

// RunOnce runs a single polling cycle.
func (a *App) RunOnce(ctx context.Context) (monitor.Report, error) {
	return a.monitor.RunCycle(ctx)
}

// RunPolling runs polling cycles until ctx is done.
func (a *App) RunPolling(ctx context.Context) error {
	return monitor.NewScheduler(a.monitor, a.checkInterval, a.logger).Run(ctx)
}

func (a *App) checkInterval() time.Duration {
	return a.config.Snapshot().Monitoring.CheckInterval
}

// Serve runs the HTTP surface and, when enabled, the webhook workers,
// polling and the Graph token refresher. It returns when ctx is done or a
// component fails.
func (a *App) Serve(ctx context.Context, polling bool) error {
	snap := a.config.Snapshot()

	deps := server.Deps{
		Config:   a.config,
		Store:    a.store,
		Auth:     a.authn,
		Governor: a.governor,
		Monitor:  a.monitor,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Version:  a.version,
	}
	if a.webhook != nil {
		deps.Webhook = a.webhook
		deps.Pool = a.pool
	}
	srv := server.New(snap.Webhook.ListenAddr, deps)

	g, gctx := errgroup.WithContext(ctx)
	if a.pool != nil {
		a.pool.Start(gctx)
	}
	g.Go(func() error { return srv.Run(gctx) })
	if polling {
		g.Go(func() error { return a.RunPolling(gctx) })
	}
	if refresher, ok := a.gateway.(tokenRefresher); ok {
		g.Go(func() error { return a.refreshTokens(gctx, refresher, tokenRefreshInterval) })
	}
	if a.pool != nil {
		g.Go(func() error { return a.redeliverLoop(gctx, snap.Auth.RetryDelay) })
	}

	err := g.Wait()
	if a.pool != nil {
		a.pool.Stop()
	}
	return err
}

// handleJob dispatches one webhook comment. A comment that arrives while
// authentication is failing is held for redelivery, since Meta does not
// resend an acknowledged event.
func (a *App) handleJob(ctx context.Context, job worker.Job) error {
	if r := a.Authenticate(ctx); !r.OK() {
		if ctx.Err() == nil {
			a.deferJob(job)
		}
		return fmt.Errorf("%w: %s", monitor.ErrAuthFailed, r.Reason)
	}
	_, err := a.dispatcher.Dispatch(ctx, job.Comment, a.config.Snapshot())
	return err
}

func (a *App) deferJob(job worker.Job) {
	a.deferMu.Lock()
	defer a.deferMu.Unlock()
	if len(a.deferred) >= maxDeferredJobs {
		a.logger.WithField("comment_id", a.deferred[0].Comment.ID).Warn("Deferred webhook queue full, dropping oldest comment")
		a.deferred = a.deferred[1:]
	}
	a.deferred = append(a.deferred, job)
}

// Deferred returns the number of webhook comments waiting for
// authentication to recover.
func (a *App) Deferred() int {
	a.deferMu.Lock()
	defer a.deferMu.Unlock()
	return len(a.deferred)
}

func (a *App) redeliverLoop(ctx context.Context, interval time.Duration) error {
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.redeliverDeferred(ctx)
		}
	}
}

// redeliverDeferred resubmits held comments once authentication succeeds.
// Jobs the pool cannot take stay held for the next attempt.
func (a *App) redeliverDeferred(ctx context.Context) int {
	if a.pool == nil || a.Deferred() == 0 {
		return 0
	}
	if r := a.Authenticate(ctx); !r.OK() {
		return 0
	}

	a.deferMu.Lock()
	jobs := a.deferred
	a.deferred = nil
	a.deferMu.Unlock()

	sent := 0
	for i, job := range jobs {
		if err := a.pool.TrySubmit(job); err != nil {
			a.deferMu.Lock()
			a.deferred = append(jobs[i:], a.deferred...)
			a.deferMu.Unlock()
			break
		}
		sent++
	}
	if sent > 0 {
		a.logger.WithField("comments", sent).Info("Redelivered deferred webhook comments")
	}
	return sent
}

type tokenRefresher interface {
	RefreshToken(ctx context.Context) (*session.Session, error)
}

// refreshTokens renews the long-lived Graph token every interval and
// persists the refreshed session.
func (a *App) refreshTokens(ctx context.Context, r tokenRefresher, interval time.Duration) error {
	log := a.logger.WithField("component", "token_refresh")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := retry.Do(ctx, retry.Policy{Name: "token_refresh", Attempts: 3, Logger: log}, func(ctx context.Context) error {
			sess, err := r.RefreshToken(ctx)
			if err != nil {
				return err
			}
			return a.sessions.Save(sess)
		})
		if err != nil && ctx.Err() == nil {
			kind := igerrors.Classify(err)
			log.WithError(err).WithField("remediation", igerrors.Remediation(kind)).Warn("Access token refresh failed")
		}
	}
}

// PostView is a recent post with its monitoring decision.
type PostView struct {
	Post      models.Post
	Monitored bool
	Reason    resolver.Reason
}

// RecentPosts fetches the newest posts and reports which ones a polling
// cycle would monitor.
func (a *App) RecentPosts(ctx context.Context) ([]PostView, error) {
	if r := a.Authenticate(ctx); !r.OK() {
		return nil, authError(r)
	}
	snap := a.config.Snapshot()
	if err := a.governor.BeforeCall(ctx); err != nil {
		return nil, err
	}
	posts, err := a.gateway.FetchRecentPosts(ctx, snap.Monitoring.MaxPostsToCheck)
	if err != nil {
		return nil, err
	}

	filter := resolver.NewPostFilter(snap.Monitoring)
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		ok, reason := filter.Allow(p)
		views = append(views, PostView{Post: p, Monitored: ok, Reason: reason})
	}
	return views, nil
}

func authError(r auth.Result) error {
	if r.Err != nil {
		return igerrors.Wrap(r.Reason, r.Err, "authentication failed")
	}
	return igerrors.New(r.Reason, "authentication failed")
}

func (a *App) onOutcome(out dispatcher.Outcome) {
	a.metrics.CommentProcessed(string(out.Action))
	if d := a.dash(); d != nil {
		d.CommentProcessed(tui.CommentEntry{
			CommentID: out.CommentID,
			Username:  out.Username,
			Action:    out.Action,
			Keyword:   out.Keyword,
		})
		d.UpdateGovernor(governorState(a.governor.Status()))
	}
}

func (a *App) onRateLimited(elevated time.Duration) {
	a.metrics.RateLimited()
	if d := a.dash(); d != nil {
		d.UpdateGovernor(governorState(a.governor.Status()))
	}
	n := a.config.Snapshot().Notifications
	if n.Enabled && n.OnRateLimit && a.notifier != nil {
		if err := a.notifier.SendNotification("igdmbot rate limited", "Backing off "+elevated.String()); err != nil {
			a.logger.WithError(err).Debug("Desktop notification failed")
		}
	}
}

func (a *App) onAuthFailure(r auth.Result) {
	a.metrics.AuthAttempt(false, string(r.Reason))
	d := a.dash()
	if d != nil {
		d.UpdateAuth(auth.StateFailed.String(), string(r.Reason))
	} else {
		auth.PrintFailure(a.stderr, r)
	}

	n := a.config.Snapshot().Notifications
	if n.Enabled && n.OnAuthFailure && a.notifier != nil {
		if err := a.notifier.SendError("igdmbot authentication failed", igerrors.Remediation(r.Reason)); err != nil {
			a.logger.WithError(err).Debug("Desktop notification failed")
		}
	}
}

func (a *App) onCycleStart(id string) {
	if d := a.dash(); d != nil {
		d.CycleStarted(id)
	}
}

func (a *App) onCycleDone(r monitor.Report) {
	d := a.dash()
	if d == nil {
		return
	}
	st := a.authn.Status()
	d.UpdateAuth(st.State, st.Reason)
	d.UpdateGovernor(governorState(a.governor.Status()))
	d.CycleFinished(tui.CycleSummary{
		ID:             r.ID,
		Started:        r.Started,
		Finished:       r.Finished,
		PostsMonitored: r.PostsMonitored,
		CommentsSeen:   r.CommentsSeen,
		Dispatched:     r.Dispatched,
		Failures:       r.Failures,
		AuthFailed:     r.AuthFailed,
		Error:          r.Error,
	})
}

func governorState(s ratelimit.GovernorStatus) tui.GovernorState {
	return tui.GovernorState{
		DMsLastHour:     s.DMsLastHour,
		MaxDMsPerHour:   s.MaxDMsPerHour,
		Signals:         s.Signals,
		ElevatedBackoff: s.ElevatedBackoff,
	}
}

// meteredAuth counts authentication attempts that changed state.
type meteredAuth struct {
	*auth.Authenticator
	metrics *metrics.Collector
}

func (m *meteredAuth) Authenticate(ctx context.Context) auth.Result {
	before := m.Authenticator.State()
	r := m.Authenticator.Authenticate(ctx)
	if r.OK() && before != auth.StateAuthenticated {
		m.metrics.AuthAttempt(true, "")
	}
	return r
}
