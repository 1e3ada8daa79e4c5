package auth

import "sync"

// MemorySecretStore implements SecretStore in memory for tests and for
// systems without a keychain.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string

	// Error injection for testing
	GetError error
	SetError error
}

// NewMemorySecretStore creates an empty store
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]string)}
}

func (m *MemorySecretStore) Get(username, field string) (string, error) {
	if m.GetError != nil {
		return "", m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.secrets[keyringKey(username, field)]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *MemorySecretStore) Set(username, field, value string) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[keyringKey(username, field)] = value
	return nil
}

func (m *MemorySecretStore) Delete(username, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyringKey(username, field)
	if _, ok := m.secrets[key]; !ok {
		return ErrSecretNotFound
	}
	delete(m.secrets, key)
	return nil
}

// Count returns the number of stored secrets
func (m *MemorySecretStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
