package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService       = "igdmbot"
	keyringPassphraseKey = "session_passphrase"

	// PassphraseEnv overrides every other passphrase source.
	PassphraseEnv = "IGDMBOT_SESSION_PASSPHRASE"
)

// ResolvePassphrase returns the session encryption passphrase. It checks the
// environment, then the OS keyring, then a 0600 file in fallbackDir. When
// nothing is stored a random passphrase is generated and saved to the first
// writable location.
func ResolvePassphrase(fallbackDir string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	pass, err := keyring.Get(keyringService, keyringPassphraseKey)
	if err == nil && pass != "" {
		return pass, nil
	}
	keyringUsable := err == nil || errors.Is(err, keyring.ErrNotFound)

	passFile := filepath.Join(fallbackDir, ".session_passphrase")
	if content, err := os.ReadFile(passFile); err == nil && len(content) > 0 {
		return strings.TrimSpace(string(content)), nil
	}

	pass, err = generatePassphrase()
	if err != nil {
		return "", err
	}

	if keyringUsable {
		if err := keyring.Set(keyringService, keyringPassphraseKey, pass); err == nil {
			return pass, nil
		}
	}

	if err := os.MkdirAll(fallbackDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create passphrase directory: %w", err)
	}
	if err := os.WriteFile(passFile, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// generatePassphrase generates a secure random passphrase
func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
