package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// User is the driver profile persisted alongside the token.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// state mirrors the storage contract of the driver UI shell: the same three
// keys it keeps in browser storage.
type state struct {
	Token           string `json:"token"`
	User            User   `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Store is a file-backed session credential store. A missing file reads as an
// empty unauthenticated session, not an error.
type Store struct {
	path string

	mu sync.RWMutex
	st state
}

// NewStore creates a session store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the session file into memory.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.st = state{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("session load: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("session load: %w", err)
	}
	s.st = st
	return nil
}

// Save persists the in-memory session to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	st := s.st
	s.mu.RUnlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session save: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

// Token returns the current bearer token ("" when not authenticated).
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Token
}

// User returns the stored driver profile.
func (s *Store) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.User
}

// Authenticated reports whether a usable session is present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.IsAuthenticated && s.st.Token != ""
}

// SetSession replaces the stored credentials (login).
func (s *Store) SetSession(token string, user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{Token: token, User: user, IsAuthenticated: token != ""}
}

// Clear drops the stored credentials (logout).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{}
}
