package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fruitsalade/ecloud/pkg/models"
)

// Store persists the token pair. Implementations always write or clear
// both tokens together.
type Store interface {
	Load() (models.Tokens, error)
	Save(models.Tokens) error
	Clear() error
}

// DefaultDir returns the per-user directory for ecloud state.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "ecloud")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ecloud")
}

// FileStore keeps the tokens in a JSON file readable only by the owner.
type FileStore struct {
	path string
}

type sessionFile struct {
	models.Tokens
	SavedAt time.Time `json:"saved_at"`
}

// NewFileStore creates a store backed by path. An empty path uses
// session.json under DefaultDir.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = filepath.Join(DefaultDir(), "session.json")
	}
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the saved tokens. A missing file yields an empty pair.
func (s *FileStore) Load() (models.Tokens, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Tokens{}, nil
		}
		return models.Tokens{}, fmt.Errorf("read session file: %w", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Tokens{}, fmt.Errorf("parse session file: %w", err)
	}
	return f.Tokens, nil
}

// Save writes the tokens through a temp file and rename.
func (s *FileStore) Save(tokens models.Tokens) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sessionFile{Tokens: tokens, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Clear removes the session file.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// MemoryStore keeps tokens in memory only.
type MemoryStore struct {
	mu     sync.Mutex
	tokens models.Tokens
}

// NewMemoryStore creates a store seeded with tokens.
func NewMemoryStore(tokens models.Tokens) *MemoryStore {
	return &MemoryStore{tokens: tokens}
}

func (s *MemoryStore) Load() (models.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, nil
}

func (s *MemoryStore) Save(tokens models.Tokens) error {
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.tokens = models.Tokens{}
	s.mu.Unlock()
	return nil
}
