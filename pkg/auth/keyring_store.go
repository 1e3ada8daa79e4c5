package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igdmbot"
	keyringPrefix  = "instagram_"
)

// Secret fields that can be kept outside the configuration file.
const (
	FieldPassword    = "password"
	FieldBackupCode  = "backup_code"
	FieldSessionID   = "session_id"
	FieldAccessToken = "access_token"
)

// Fields lists every secret field in display order.
var Fields = []string{FieldPassword, FieldBackupCode, FieldSessionID, FieldAccessToken}

// SecretStore keeps per-account secrets.
type SecretStore interface {
	Get(username, field string) (string, error)
	Set(username, field, value string) error
	Delete(username, field string) error
}

// KeyringStore implements SecretStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based secret store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func keyringKey(username, field string) string {
	return keyringPrefix + secretOwner(username) + "_" + field
}

// Get reads a secret from the system keychain
func (k *KeyringStore) Get(username, field string) (string, error) {
	v, err := keyring.Get(keyringService, keyringKey(username, field))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to retrieve from keyring: %w", err)
	}
	return v, nil
}

// Set writes a secret to the system keychain
func (k *KeyringStore) Set(username, field, value string) error {
	if value == "" {
		return errors.New("empty secret")
	}
	if err := keyring.Set(keyringService, keyringKey(username, field), value); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Delete removes a secret from the system keychain
func (k *KeyringStore) Delete(username, field string) error {
	err := keyring.Delete(keyringService, keyringKey(username, field))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// DeleteAll removes every known secret field for username. Missing fields
// are ignored.
func DeleteAll(s SecretStore, username string) error {
	var errs []error
	for _, f := range Fields {
		if err := s.Delete(username, f); err != nil && !errors.Is(err, ErrSecretNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
