package auth

import (
	"context"
	"errors"

	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/session"
)

// Method is one way of obtaining a session.
type Method interface {
	Name() string
	Available(Credential) bool
	Authenticate(ctx context.Context, cred Credential) (*session.Session, error)
}

// SessionVerifier checks a session with one "who am I" call, restoring it
// into the underlying client on success.
type SessionVerifier interface {
	VerifySession(ctx context.Context, sess *session.Session) error
}

// SessionIDLogin logs in with a browser session identifier.
type SessionIDLogin interface {
	LoginWithSessionID(ctx context.Context, username, sessionID string) (*session.Session, error)
}

// PasswordLogin logs in with a password. When the service asks for a second
// factor, PasswordLogin fails with ErrorTypeSecondFactorRequired and
// SubmitSecondFactor completes the pending login.
type PasswordLogin interface {
	PasswordLogin(ctx context.Context, username, password string) (*session.Session, error)
	SubmitSecondFactor(ctx context.Context, username, code string) (*session.Session, error)
}

// TokenValidator validates an access token against its account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accountID, accessToken string) (*session.Session, error)
}

// Method names, in default order.
const (
	MethodCachedSession  = "cached-session"
	MethodSessionID      = "session-id"
	MethodPasswordBackup = "password+backup-code"
	MethodPassword       = "password"
	MethodAccessToken    = "access-token"
)

// DefaultMethods returns the standard method chain for backend. Methods
// whose back-end interface backend does not implement are left out.
func DefaultMethods(store session.Store, backend interface{}) []Method {
	var methods []Method
	if v, ok := backend.(SessionVerifier); ok && store != nil {
		methods = append(methods, &CachedSessionMethod{Store: store, Verifier: v})
	}
	if b, ok := backend.(SessionIDLogin); ok {
		methods = append(methods, &SessionIDMethod{Backend: b})
	}
	if b, ok := backend.(PasswordLogin); ok {
		methods = append(methods, &PasswordBackupCodeMethod{Backend: b}, &PasswordMethod{Backend: b})
	}
	if b, ok := backend.(TokenValidator); ok {
		methods = append(methods, &AccessTokenMethod{Backend: b})
	}
	return methods
}

// CachedSessionMethod reuses the persisted session.
type CachedSessionMethod struct {
	Store    session.Store
	Verifier SessionVerifier
}

func (m *CachedSessionMethod) Name() string { return MethodCachedSession }

func (m *CachedSessionMethod) Available(Credential) bool { return m.Store != nil }

func (m *CachedSessionMethod) Authenticate(ctx context.Context, cred Credential) (*session.Session, error) {
	sess, err := m.Store.Load()
	if errors.Is(err, session.ErrNotFound) {
		return nil, igerrors.New(igerrors.ErrorTypeNotFound, "no cached session")
	}
	if err != nil {
		return nil, err
	}
	if cred.Username != "" && sess.Username != "" && sess.Username != cred.Username {
		return nil, igerrors.Newf(igerrors.ErrorTypeNotFound, "cached session belongs to %s", sess.Username)
	}
	if err := m.Verifier.VerifySession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SessionIDMethod logs in with the configured session identifier.
type SessionIDMethod struct {
	Backend SessionIDLogin
}

func (m *SessionIDMethod) Name() string { return MethodSessionID }

func (m *SessionIDMethod) Available(c Credential) bool { return c.SessionID != "" }

func (m *SessionIDMethod) Authenticate(ctx context.Context, cred Credential) (*session.Session, error) {
	return m.Backend.LoginWithSessionID(ctx, cred.Username, cred.SessionID)
}

// PasswordBackupCodeMethod answers a second factor prompt with the backup
// code.
type PasswordBackupCodeMethod struct {
	Backend PasswordLogin
}

func (m *PasswordBackupCodeMethod) Name() string { return MethodPasswordBackup }

func (m *PasswordBackupCodeMethod) Available(c Credential) bool {
	return c.Username != "" && c.Password != "" && c.NormalizedBackupCode() != ""
}

func (m *PasswordBackupCodeMethod) Authenticate(ctx context.Context, cred Credential) (*session.Session, error) {
	sess, err := m.Backend.PasswordLogin(ctx, cred.Username, cred.Password)
	if err == nil {
		return sess, nil
	}
	if igerrors.Classify(err) != igerrors.ErrorTypeSecondFactorRequired {
		return nil, err
	}

	sess, err = m.Backend.SubmitSecondFactor(ctx, cred.Username, cred.NormalizedBackupCode())
	if err != nil {
		if kind := igerrors.Classify(err); kind == igerrors.ErrorTypeUnknown || kind == igerrors.ErrorTypeInvalidCredentials {
			return nil, igerrors.Wrap(igerrors.ErrorTypeBackupCodeRejected, err, "backup code rejected")
		}
		return nil, err
	}
	return sess, nil
}

// PasswordMethod is a plain password login.
type PasswordMethod struct {
	Backend PasswordLogin
}

func (m *PasswordMethod) Name() string { return MethodPassword }

func (m *PasswordMethod) Available(c Credential) bool {
	return c.Username != "" && c.Password != ""
}

func (m *PasswordMethod) Authenticate(ctx context.Context, cred Credential) (*session.Session, error) {
	return m.Backend.PasswordLogin(ctx, cred.Username, cred.Password)
}

// AccessTokenMethod validates an OAuth access token.
type AccessTokenMethod struct {
	Backend TokenValidator
}

func (m *AccessTokenMethod) Name() string { return MethodAccessToken }

func (m *AccessTokenMethod) Available(c Credential) bool {
	return c.AccessToken != "" && c.AccountID != ""
}

func (m *AccessTokenMethod) Authenticate(ctx context.Context, cred Credential) (*session.Session, error) {
	return m.Backend.ValidateToken(ctx, cred.AccountID, cred.AccessToken)
}
