package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
)

// FileStore keeps the session at path with a single backup generation at
// path+".bak". A write never leaves the primary partially written: the new
// state goes to path+".tmp" first and is renamed into place.
type FileStore struct {
	path   string
	codec  Codec
	logger logger.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithCodec selects the on-disk encoding. The default is JSONCodec.
func WithCodec(c Codec) Option {
	return func(s *FileStore) { s.codec = c }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore creates a store rooted at path, creating its directory.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &FileStore{path: path, codec: JSONCodec{}, logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the primary file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) backupPath() string { return s.path + ".bak" }
func (s *FileStore) tempPath() string   { return s.path + ".tmp" }

// Save atomically replaces the stored session. A primary that still decodes
// is demoted to the backup slot first; a corrupt primary is simply replaced
// so it can never overwrite a good backup.
func (s *FileStore) Save(sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if sess.Version == 0 {
		sess.Version = currentVersion
	}

	data, err := s.codec.Encode(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := writeTemp(s.tempPath(), data); err != nil {
		return err
	}

	if current, err := os.ReadFile(s.path); err == nil {
		if _, err := s.codec.Decode(current); err == nil {
			if err := os.Rename(s.path, s.backupPath()); err != nil {
				os.Remove(s.tempPath())
				return fmt.Errorf("failed to rotate session backup: %w", err)
			}
		} else {
			s.logger.Warn("Discarding undecodable session primary")
		}
	}

	if err := os.Rename(s.tempPath(), s.path); err != nil {
		os.Remove(s.tempPath())
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.logger.DebugWithFields("Session saved", map[string]interface{}{
		"path": s.path,
		"kind": sess.Kind,
	})
	return nil
}

// Load returns the stored session. If the primary is missing or damaged and
// the backup decodes, the backup is promoted back to primary. ErrNotFound
// means neither file exists; a session_corrupt error means files exist but
// none decode.
func (s *FileStore) Load() (*Session, error) {
	primary, primaryErr := s.readFile(s.path)
	if primaryErr == nil {
		return primary, nil
	}

	backup, backupErr := s.readFile(s.backupPath())
	if backupErr == nil {
		s.logger.WarnWithFields("Session primary unreadable, restoring backup", map[string]interface{}{
			"error": primaryErr.Error(),
		})
		if err := s.promoteBackup(); err != nil {
			s.logger.ErrorWithFields("Failed to restore session backup", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return backup, nil
	}

	if errors.Is(primaryErr, os.ErrNotExist) && errors.Is(backupErr, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	cause := primaryErr
	if errors.Is(primaryErr, os.ErrNotExist) {
		cause = backupErr
	}
	return nil, igerrors.Wrap(igerrors.ErrorTypeSessionCorrupt, cause, "stored session is unreadable")
}

// Clear removes all session files.
func (s *FileStore) Clear() error {
	var errs []error
	for _, p := range []string{s.path, s.backupPath(), s.tempPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) readFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(data)
}

func (s *FileStore) promoteBackup() error {
	data, err := os.ReadFile(s.backupPath())
	if err != nil {
		return err
	}
	if err := writeTemp(s.tempPath(), data); err != nil {
		return err
	}
	if err := os.Rename(s.tempPath(), s.path); err != nil {
		os.Remove(s.tempPath())
		return err
	}
	return nil
}

func writeTemp(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	sess *Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*Session, error) {
	if m.sess == nil {
		return nil, ErrNotFound
	}
	return m.sess.Clone(), nil
}

func (m *MemoryStore) Save(s *Session) error {
	m.sess = s.Clone()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.sess = nil
	return nil
}
