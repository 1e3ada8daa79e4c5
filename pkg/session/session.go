package session

import (
	"errors"
	"time"
)

const currentVersion = 1

// Session kinds, matching the gateway binding that produced the state.
const (
	KindWeb   = "web"
	KindGraph = "graph"
)

// ErrNotFound is returned by Load when neither the primary nor the backup
// file exists.
var ErrNotFound = errors.New("no stored session")

// Session is serialized authentication state. Data is opaque to this
// package; each gateway binding defines its own payload.
type Session struct {
	Kind         string    `json:"kind"`
	Username     string    `json:"username,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	Data         []byte    `json:"data"`
	Valid        bool      `json:"valid"`
	LastVerified time.Time `json:"last_verified"`
	CreatedAt    time.Time `json:"created_at"`
	Version      int       `json:"version"`
}

// New creates a valid session for the given binding.
func New(kind, username string, data []byte) *Session {
	now := time.Now().UTC()
	return &Session{
		Kind:         kind,
		Username:     username,
		Data:         data,
		Valid:        true,
		LastVerified: now,
		CreatedAt:    now,
		Version:      currentVersion,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = append([]byte(nil), s.Data...)
	return &c
}

func (s *Session) validate() error {
	if s.Version <= 0 || s.Version > currentVersion {
		return errors.New("unsupported session version")
	}
	if s.Kind == "" {
		return errors.New("session kind missing")
	}
	return nil
}

// Store persists a single session.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}
