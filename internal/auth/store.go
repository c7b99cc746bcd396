// Package auth persists session credentials as JSON blobs in a directory,
// one file per key, so a restart can resume the session without pairing
// again.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// CredsFile is the blob whose presence means a paired session exists.
const CredsFile = "creds"

// Store is a directory of JSON credential blobs. Writes are atomic
// (temp file + rename) so a crash never leaves a half-written blob.
type Store struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

func NewStore(dir string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("auth: dir is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("auth: create dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// HasCredentials reports whether a paired session is on disk.
func (s *Store) HasCredentials() bool {
	_, err := os.Stat(s.path(CredsFile))
	return err == nil
}

// Put marshals v and atomically replaces the blob named key.
func (s *Store) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("auth: marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Get unmarshals the blob named key into out. The bool reports whether
// the blob exists; a missing blob is not an error.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("auth: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a single blob. A concrete transport uses it to drop
// rotated signal key blobs without wiping the whole session.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear wipes every blob in the directory, forcing a fresh pairing on the
// next connect. The directory itself survives.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	s.log.Info("credentials cleared", logx.String("dir", s.dir))
	return nil
}

// path maps a blob key to a file name. Keys may carry separators (signal
// key ids do); they are flattened so every blob stays inside dir.
func (s *Store) path(key string) string {
	name := strings.NewReplacer("/", "__", "\\", "__", ":", "-").Replace(key)
	return filepath.Join(s.dir, name+".json")
}
