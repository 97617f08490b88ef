// Package credentials persists the bearer token between CLI invocations.
// It is the client-side equivalent of the web app's token storage: one
// fixed key, read fresh on every call so a refresh or clear done elsewhere
// is always picked up.
package credentials

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "credentials.json"

type credentialsFile struct {
	AccessToken string `json:"access_token"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore places the credentials file under dir. An empty dir falls back
// to the user config directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "gradesight")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, fileName)}, nil
}

// Load returns the stored token, or "" when none is stored. Reads the file
// every time, never a cached copy.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var cf credentialsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return "", err
	}
	return cf.AccessToken, nil
}

func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(credentialsFile{AccessToken: token})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear removes the stored token. Clearing an already-empty store is fine.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
