package auth

import (
	"context"
	"sync"
	"time"

	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/session"
)

// State is the authenticator lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Authenticate. Reason is set when State is
// StateFailed; Method names the method that succeeded.
type Result struct {
	State  State
	Reason igerrors.ErrorType
	Method string
	Err    error
}

// OK reports whether the result is authenticated.
func (r Result) OK() bool { return r.State == StateAuthenticated }

const (
	defaultRetryDelay     = 10 * time.Minute
	defaultVerifyInterval = 5 * time.Minute
)

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithRetryDelay sets the cooldown after a failed authentication.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Authenticator) { a.retryDelay = d }
}

// WithVerifyInterval sets how long a verified session is trusted.
func WithVerifyInterval(d time.Duration) Option {
	return func(a *Authenticator) { a.verifyInterval = d }
}

// WithVerifier sets the session verifier used by IsValid.
func WithVerifier(v SessionVerifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithLogger sets the authenticator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// WithFailureHook registers fn to be called after every failed
// Authenticate that made remote calls.
func WithFailureHook(fn func(Result)) Option {
	return func(a *Authenticator) { a.onFailure = fn }
}

// Authenticator obtains and maintains one session by trying its methods in
// order. All methods are safe for concurrent use; a single authentication
// or verification runs at a time.
type Authenticator struct {
	cred    Credential
	store   session.Store
	methods []Method

	retryDelay     time.Duration
	verifyInterval time.Duration
	verifier       SessionVerifier
	now            func() time.Time
	logger         logger.Logger
	onFailure      func(Result)

	run sync.Mutex

	mu           sync.RWMutex
	state        State
	reason       igerrors.ErrorType
	activeMethod string
	sess         *session.Session
	lastFailure  time.Time
	lastCheck    time.Time
}

// NewAuthenticator creates an authenticator for cred.
func NewAuthenticator(cred Credential, store session.Store, methods []Method, opts ...Option) *Authenticator {
	a := &Authenticator{
		cred:           cred,
		store:          store,
		methods:        methods,
		retryDelay:     defaultRetryDelay,
		verifyInterval: defaultVerifyInterval,
		now:            time.Now,
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithField("component", "auth")
	return a
}

// Authenticate tries each available method until one succeeds. It makes no
// remote calls while authenticated or within the retry cooldown.
func (a *Authenticator) Authenticate(ctx context.Context) Result {
	a.run.Lock()
	defer a.run.Unlock()

	a.mu.Lock()
	if a.state == StateAuthenticated && a.sess != nil && a.sess.Valid {
		r := Result{State: StateAuthenticated, Method: a.activeMethod}
		a.mu.Unlock()
		return r
	}
	if !a.lastFailure.IsZero() && a.now().Before(a.lastFailure.Add(a.retryDelay)) {
		retryAt := a.lastFailure.Add(a.retryDelay)
		a.mu.Unlock()
		a.logger.WithField("retry_at", retryAt).Debug("Authentication cooling down")
		return Result{
			State:  StateFailed,
			Reason: igerrors.ErrorTypeRateLimit,
			Err:    igerrors.Newf(igerrors.ErrorTypeRateLimit, "authentication retry not allowed before %s", retryAt.Format(time.RFC3339)),
		}
	}
	prev := a.state
	a.state = StateAuthenticating
	a.mu.Unlock()

	var (
		lastErr  error
		lastKind = igerrors.ErrorTypeInvalidCredentials
		tried    int
	)

	for _, m := range a.methods {
		if !m.Available(a.cred) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return a.abandon(prev, err)
		}

		sess, err := m.Authenticate(ctx, a.cred)
		if err == nil && sess != nil {
			logger.LogAuthAttempt(a.logger, m.Name(), nil)
			return a.succeed(m.Name(), sess)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return a.abandon(prev, ctxErr)
		}
		if err == nil {
			err = igerrors.New(igerrors.ErrorTypeUnknown, "method returned no session")
		}

		if igerrors.TypeOf(err) == igerrors.ErrorTypeNotFound {
			// nothing cached, not a failure of the account
			a.logger.WithField("method", m.Name()).Debug("No cached session")
			continue
		}
		kind := igerrors.Classify(err)
		tried++
		lastErr, lastKind = err, kind
		logger.LogAuthAttempt(a.logger, m.Name(), err)
		logger.LogAuthFailure(a.logger.WithField("method", m.Name()), string(kind), igerrors.Remediation(kind), err)
	}

	if tried == 0 && lastErr == nil {
		lastErr = ErrNoCredentials
	}

	a.mu.Lock()
	a.state = StateFailed
	a.reason = lastKind
	a.lastFailure = a.now()
	a.sess = nil
	a.activeMethod = ""
	a.mu.Unlock()

	r := Result{State: StateFailed, Reason: lastKind, Err: lastErr}
	if a.onFailure != nil {
		a.onFailure(r)
	}
	return r
}

// abandon ends an attempt interrupted by ctx. It is not an account failure,
// so it neither starts the cooldown nor fires the failure hook.
func (a *Authenticator) abandon(prev State, err error) Result {
	a.mu.Lock()
	a.state = prev
	a.mu.Unlock()
	a.logger.WithError(err).Debug("Authentication interrupted")
	return Result{State: StateFailed, Reason: igerrors.ErrorTypeGatewayUnavailable, Err: err}
}

func (a *Authenticator) succeed(method string, sess *session.Session) Result {
	now := a.now().UTC()
	sess.Valid = true
	sess.LastVerified = now
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.Username == "" {
		sess.Username = a.cred.Username
	}

	if a.store != nil {
		if err := a.store.Save(sess); err != nil {
			a.logger.WithError(err).Warn("Failed to persist session")
		}
	}

	a.mu.Lock()
	a.state = StateAuthenticated
	a.reason = ""
	a.activeMethod = method
	a.sess = sess.Clone()
	a.lastFailure = time.Time{}
	a.lastCheck = a.now()
	a.mu.Unlock()

	a.logger.WithField("method", method).Info("Authenticated")
	return Result{State: StateAuthenticated, Method: method}
}

// IsValid reports whether the current session can be used. Within the
// verify interval the cached answer is returned; afterwards the session is
// re-verified remotely.
func (a *Authenticator) IsValid(ctx context.Context) bool {
	a.mu.RLock()
	if a.state != StateAuthenticated || a.sess == nil {
		a.mu.RUnlock()
		return false
	}
	if a.now().Sub(a.lastCheck) < a.verifyInterval || a.verifier == nil {
		valid := a.sess.Valid
		a.mu.RUnlock()
		return valid
	}
	a.mu.RUnlock()

	a.run.Lock()
	defer a.run.Unlock()

	a.mu.RLock()
	sess := a.sess.Clone()
	a.mu.RUnlock()
	if sess == nil {
		return false
	}

	err := a.verifier.VerifySession(ctx, sess)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateAuthenticated {
		return false
	}
	if err != nil {
		kind := igerrors.Classify(err)
		if kind == igerrors.ErrorTypeGatewayUnavailable || kind == igerrors.ErrorTypeRateLimit {
			a.logger.WithError(err).Warn("Session verification inconclusive, keeping session")
			return true
		}
		a.logger.WithError(err).WithField("error_kind", string(kind)).Warn("Session no longer valid")
		a.expireLocked()
		return false
	}

	a.lastCheck = a.now()
	a.sess.LastVerified = a.lastCheck.UTC()
	return true
}

// Invalidate marks the current session expired. The persisted copy is kept
// so the cached-session method can re-verify it.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateAuthenticated {
		a.logger.Warn("Session invalidated")
		a.expireLocked()
	}
}

func (a *Authenticator) expireLocked() {
	a.state = StateExpired
	if a.sess != nil {
		a.sess.Valid = false
	}
}

// State returns the current state.
func (a *Authenticator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Status is a point-in-time summary for status output.
type Status struct {
	State        string     `json:"state"`
	Reason       string     `json:"reason,omitempty"`
	Method       string     `json:"method,omitempty"`
	Username     string     `json:"username,omitempty"`
	LastVerified *time.Time `json:"last_verified,omitempty"`
	RetryAt      *time.Time `json:"retry_at,omitempty"`
}

// Status returns a summary of the authenticator.
func (a *Authenticator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		State:    a.state.String(),
		Reason:   string(a.reason),
		Method:   a.activeMethod,
		Username: a.cred.Username,
	}
	if a.sess != nil {
		lv := a.sess.LastVerified
		st.LastVerified = &lv
	}
	if a.state == StateFailed && !a.lastFailure.IsZero() {
		retry := a.lastFailure.Add(a.retryDelay)
		st.RetryAt = &retry
	}
	return st
}

// Session returns a copy of the active session, or nil.
func (a *Authenticator) Session() *session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sess.Clone()
}

// Credential returns the credential the authenticator was built with.
func (a *Authenticator) Credential() Credential { return a.cred }
