package auth

import (
	"errors"
	"strings"

	"igdmbot/pkg/config"
)

// Kind identifies which secret a credential carries.
type Kind string

const (
	KindPassword     Kind = "password"
	KindSessionToken Kind = "session-token"
	KindAccessToken  Kind = "oauth-access-token"
)

// Credential is the frozen set of secrets for one run.
type Credential struct {
	Kind        Kind   `json:"kind"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	BackupCode  string `json:"backup_code,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
}

// CredentialFromConfig builds the run credential. Secrets missing from the
// configuration are looked up in secrets (which may be nil) under the
// configured username.
func CredentialFromConfig(cfg config.InstagramConfig, secrets SecretStore) Credential {
	cred := Credential{
		Username:    cfg.Username,
		Password:    cfg.Password,
		BackupCode:  cfg.BackupCode,
		SessionID:   cfg.SessionID,
		AccessToken: cfg.AccessToken,
		AccountID:   cfg.AccountID,
	}

	if secrets != nil {
		fill := func(dst *string, field string) {
			if *dst != "" {
				return
			}
			if v, err := secrets.Get(secretOwner(cfg.Username), field); err == nil {
				*dst = v
			}
		}
		fill(&cred.Password, FieldPassword)
		fill(&cred.BackupCode, FieldBackupCode)
		fill(&cred.SessionID, FieldSessionID)
		fill(&cred.AccessToken, FieldAccessToken)
	}

	cred.Kind = cred.deriveKind()
	return cred
}

func (c Credential) deriveKind() Kind {
	switch {
	case c.SessionID != "":
		return KindSessionToken
	case c.Password != "":
		return KindPassword
	case c.AccessToken != "":
		return KindAccessToken
	default:
		return ""
	}
}

// NormalizedBackupCode returns the backup code with all whitespace removed.
func (c Credential) NormalizedBackupCode() string {
	return strings.Join(strings.Fields(c.BackupCode), "")
}

// Validate reports whether at least one authentication path is usable.
func (c Credential) Validate() error {
	switch {
	case c.SessionID != "":
		return nil
	case c.Password != "":
		if c.Username == "" {
			return errors.New("username is required for password login")
		}
		return nil
	case c.AccessToken != "":
		if c.AccountID == "" {
			return errors.New("account id is required for access token login")
		}
		return nil
	default:
		return ErrNoCredentials
	}
}

// Sanitized returns a copy with every secret masked, safe to log or print.
func (c Credential) Sanitized() Credential {
	out := c
	out.Password = maskSecret(c.Password)
	out.BackupCode = maskSecret(c.BackupCode)
	out.SessionID = maskString(c.SessionID)
	out.AccessToken = maskString(c.AccessToken)
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// secretOwner is the keyring account a secret is filed under.
func secretOwner(username string) string {
	if username == "" {
		return "default"
	}
	return username
}

// Errors
var (
	ErrNoCredentials    = errors.New("no credentials configured: set a session id, a password or an access token")
	ErrSecretNotFound   = errors.New("secret not found")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)
