// Package prefs is a small persistent key-value preference store: loaded
// once at startup, saved on every change. It remembers cross-session
// participant settings such as the display name and capture device.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Well-known preference keys.
const (
	KeyName   = "name"
	KeyDevice = "device"
)

// Store is the preference store consumed by the application layer.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// FileStore persists preferences as a msgpack-encoded map.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// DefaultPath places the store under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "decode", "prefs.msgpack"), nil
}

// Open loads the store at path, treating a missing file as empty.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := msgpack.Unmarshal(b, &s.values); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return s, nil
}

// Get returns the stored value for key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores and immediately persists one value.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	b, err := msgpack.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
