package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// runtimeOverrides is the subset of the configuration the admin interface
// may rewrite. It is persisted to Storage.RuntimeFile.
type runtimeOverrides struct {
	Keywords   KeywordConfig    `yaml:"keywords"`
	Messages   MessageConfig    `yaml:"messages"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// LoadRuntimeOverrides applies the persisted runtime file on top of c. Keys
// missing from the file keep their current value. A missing file is not an
// error.
func (c *Config) LoadRuntimeOverrides() error {
	if c.Storage.RuntimeFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Storage.RuntimeFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read runtime file: %w", err)
	}

	overrides := runtimeOverrides{
		Keywords:   c.Keywords,
		Messages:   c.Messages,
		Monitoring: c.Monitoring,
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse runtime file: %w", err)
	}
	c.Keywords = overrides.Keywords
	c.Messages = overrides.Messages
	c.Monitoring = overrides.Monitoring
	return nil
}

// SaveRuntimeOverrides persists the admin-editable sections of c.
func (c *Config) SaveRuntimeOverrides() error {
	if c.Storage.RuntimeFile == "" {
		return nil
	}
	data, err := yaml.Marshal(runtimeOverrides{
		Keywords:   c.Keywords,
		Messages:   c.Messages,
		Monitoring: c.Monitoring,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal runtime overrides: %w", err)
	}
	return writeFileAtomic(c.Storage.RuntimeFile, data)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Keywords.General = slices.Clone(c.Keywords.General)
	out.Keywords.Consent = slices.Clone(c.Keywords.Consent)
	out.Keywords.Interest = slices.Clone(c.Keywords.Interest)
	out.Monitoring.PostIDs = slices.Clone(c.Monitoring.PostIDs)
	out.Monitoring.RequiredHashtags = slices.Clone(c.Monitoring.RequiredHashtags)
	out.Monitoring.RequiredCaptionWords = slices.Clone(c.Monitoring.RequiredCaptionWords)
	return &out
}

// Holder owns the live configuration. Update is the only writer; readers
// take a Snapshot once per unit of work and never observe a partial update.
type Holder struct {
	mu      sync.RWMutex
	current *Config
	persist bool
}

// NewHolder wraps cfg. When persist is true every successful Update is
// written to the runtime file before it becomes visible.
func NewHolder(cfg *Config, persist bool) *Holder {
	return &Holder{current: cfg.Clone(), persist: persist}
}

// Snapshot returns an immutable copy of the current configuration.
func (h *Holder) Snapshot() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Clone()
}

// Update applies fn to a copy of the current configuration, validates and
// persists it, then publishes it. On any error the live configuration is
// unchanged.
func (h *Holder) Update(fn func(*Config) error) (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if h.persist {
		if err := next.SaveRuntimeOverrides(); err != nil {
			return nil, err
		}
	}

	h.current = next
	return next.Clone(), nil
}
