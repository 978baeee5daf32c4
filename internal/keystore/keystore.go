// Package keystore stores private keys scoped to repository names. The
// interface keeps the backend swappable; the scheduler and registry only see
// Get/Put/Delete.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/roundhouse/internal/cierr"
)

// Store is a secret store keyed by repository name.
type Store interface {
	// Get returns the stored secret for name, or cierr.ErrNotFound.
	Get(name string) ([]byte, error)
	// Put writes the secret for name, replacing any existing value.
	Put(name string, secret []byte) error
	// Delete removes the secret for name, or returns cierr.ErrNotFound.
	Delete(name string) error
	// Path returns a filesystem path holding the secret for name, for
	// callers that must hand the secret to an external tool. Returns
	// cierr.ErrNotFound when absent.
	Path(name string) (string, error)
}

// FileStore keeps one key file per repository under a base directory, mode
// 0600. Repository names contain a slash, so they are flattened for the
// filename.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("keystore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Get implements Store.
func (s *FileStore) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(s.filename(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: key for %q: %w", name, cierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read key for %q: %w", name, err)
	}
	return data, nil
}

// Put implements Store.
func (s *FileStore) Put(name string, secret []byte) error {
	if err := os.WriteFile(s.filename(name), secret, 0o600); err != nil {
		return fmt.Errorf("keystore: write key for %q: %w", name, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(name string) error {
	err := os.Remove(s.filename(name))
	if os.IsNotExist(err) {
		return fmt.Errorf("keystore: key for %q: %w", name, cierr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("keystore: delete key for %q: %w", name, err)
	}
	return nil
}

// Path implements Store.
func (s *FileStore) Path(name string) (string, error) {
	path := s.filename(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("keystore: key for %q: %w", name, cierr.ErrNotFound)
	} else if err != nil {
		return "", fmt.Errorf("keystore: stat key for %q: %w", name, err)
	}
	return path, nil
}

// filename flattens an owner/name repository identity into a single path
// segment.
func (s *FileStore) filename(name string) string {
	flat := strings.ReplaceAll(name, "/", "__")
	return filepath.Join(s.dir, flat+".key")
}
