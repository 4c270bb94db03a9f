package recordstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// TokenStore persists the auth token of the current identity.
type TokenStore interface {
	Load() string
	Save(token string)
	Clear()
}

// MemoryTokenStore keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store seeded with token, which may be empty.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Load() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) Save(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStore) Clear() {
	s.Save("")
}

// FileTokenStore keeps the token in a file readable only by the owner.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore returns a store backed by path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultTokenPath returns ~/.clubhub/token.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".clubhub", "token")
	}
	return filepath.Join(home, ".clubhub", "token")
}

func (s *FileTokenStore) Load() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to read token file", "path", s.path, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *FileTokenStore) Save(token string) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Error("failed to create token directory", "path", s.path, "error", err)
		return
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		log.Error("failed to write token file", "path", s.path, "error", err)
	}
}

func (s *FileTokenStore) Clear() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("failed to remove token file", "path", s.path, "error", err)
	}
}
