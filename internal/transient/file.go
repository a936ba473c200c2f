// Package transient keeps the live study session and today's progress in a
// local JSON file so a restart on the same day resumes where it left off.
package transient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/conorfennell/marginalia/internal/domain"
)

type fileState struct {
	Session  *domain.StudySession `json:"session,omitempty"`
	Progress domain.DailyProgress `json:"progress"`
}

// File is a state store backed by a single JSON file. Every write replaces
// the file atomically.
type File struct {
	path  string
	mu    sync.Mutex
	state fileState
}

// Open loads the state file at path, creating its directory if needed. A
// missing file is an empty state.
func Open(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	f := &File{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.state); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", path, err)
	}
	return f, nil
}

func (f *File) LoadSession() (*domain.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Session.Clone(), nil
}

func (f *File) SaveSession(s *domain.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Session = s.Clone()
	return f.persistLocked()
}

func (f *File) ClearSession() error {
	return f.SaveSession(nil)
}

func (f *File) LoadProgress() (domain.DailyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Progress, nil
}

func (f *File) SaveProgress(p domain.DailyProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Progress = p
	return f.persistLocked()
}

func (f *File) persistLocked() error {
	raw, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
