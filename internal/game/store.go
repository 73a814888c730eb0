package game

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Profile is what a client keeps between sessions.
type Profile struct {
	Name    string        `msgpack:"name"`
	Scores  []ScoreRecord `msgpack:"scores"`
	SavedAt time.Time     `msgpack:"savedAt"`
}

// Store persists the local profile.
type Store interface {
	Load() (Profile, error)
	Save(Profile) error
}

// FileStore keeps the profile in a msgpack file.
type FileStore struct {
	Path string
}

// Load returns an empty profile when the file does not exist yet.
func (fs FileStore) Load() (Profile, error) {
	data, err := os.ReadFile(fs.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func (fs FileStore) Save(p Profile) error {
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now()
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if dir := filepath.Dir(fs.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile directory: %w", err)
		}
	}

	tmpPath := fs.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := os.Rename(tmpPath, fs.Path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
