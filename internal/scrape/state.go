package scrape

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PageState records what was stored for one URL.
type PageState struct {
	Hash       string    `json:"hash"`
	IngestedAt time.Time `json:"ingested_at"`
	Chunks     int       `json:"chunks"`
}

// State remembers ingested pages so unchanged pages are skipped. With an
// empty path it lives in memory only.
type State struct {
	mu    sync.Mutex
	Pages map[string]PageState `json:"pages"`
	path  string
}

// LoadState reads the state file at path, or starts empty.
func LoadState(path string) (*State, error) {
	s := &State{Pages: make(map[string]PageState), path: expandHome(path)}
	if s.path == "" {
		return s, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Pages == nil {
		s.Pages = make(map[string]PageState)
	}
	return s, nil
}

// Unchanged reports whether url was last ingested with the same hash.
func (s *State) Unchanged(url, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Pages[url]
	return ok && p.Hash == hash
}

// Mark records an ingest and persists the state when it has a path.
func (s *State) Mark(url, hash string, chunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pages[url] = PageState{Hash: hash, IngestedAt: time.Now().UTC(), Chunks: chunks}
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
