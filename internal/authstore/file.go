package authstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/pkg/errors"
)

// FileStore keeps the entries in a JSON file readable only by the owner.
type FileStore struct {
	path   string
	logger types.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store at path
func NewFileStore(path string, logger types.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the file location
func (s *FileStore) Path() string {
	return s.path
}

// Save writes both entries, replacing the file atomically
func (s *FileStore) Save(ctx context.Context, creds *Credentials) error {
	if creds == nil {
		return errors.New("credentials are required")
	}
	entries, err := encode(creds)
	if err != nil {
		return errors.Wrap(err, "failed to marshal user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create store directory")
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal store")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write store file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to replace store file")
	}

	if s.logger != nil {
		s.logger.Info("Auth saved", "path", s.path, "user_id", creds.User.ID)
	}
	return nil
}

// Load reads both entries
func (s *FileStore) Load(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read store file")
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		if s.logger != nil {
			s.logger.Warn("Ignoring unreadable auth store", "path", s.path, "error", err)
		}
		return nil, nil
	}

	creds := decode(entries)
	if creds != nil && s.logger != nil {
		s.logger.Info("Auth loaded", "path", s.path, "user_id", creds.User.ID)
	}
	return creds, nil
}

// Clear removes the file
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove store file")
	}
	if s.logger != nil {
		s.logger.Info("Auth cleared", "path", s.path)
	}
	return nil
}
