// Package session manages OAuth token persistence and lifecycle.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"saxo-trader/internal/models"
)

// TokenStore persists one token record per environment in a single JSON
// file keyed by environment name. Writes are atomic: the file is written
// to a temp path and renamed into place.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a store backed by the given file path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load returns the stored token for the environment. A missing file or
// missing entry yields a zero token and no error.
func (s *TokenStore) Load(env models.Environment) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return models.Token{}, err
	}
	return all[string(env)], nil
}

// Save writes the token for its environment, preserving entries for
// other environments.
func (s *TokenStore) Save(token models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[string(token.Environment)] = token
	return s.writeAll(all)
}

// Clear removes the token for the environment.
func (s *TokenStore) Clear(env models.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	delete(all, string(env))
	return s.writeAll(all)
}

func (s *TokenStore) readAll() (map[string]models.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.Token{}, nil
		}
		return nil, fmt.Errorf("reading token store: %w", err)
	}

	all := map[string]models.Token{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing token store: %w", err)
	}
	return all, nil
}

func (s *TokenStore) writeAll(all map[string]models.Token) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing token store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token store: %w", err)
	}
	return nil
}
