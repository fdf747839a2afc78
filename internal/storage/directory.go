package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DirectoryStorage is the recordings root: every subdirectory is one
// recording, loaded eagerly on open.
type DirectoryStorage struct {
	root string

	mu         sync.Mutex
	recordings map[string]*RecordingStorage
}

// OpenDirectory opens (creating if needed) the recordings root and loads
// every recording under it. Dotfiles are skipped; a subdirectory with an
// unreadable manifest is skipped with a warning rather than failing the
// whole directory.
func OpenDirectory(root string) (*DirectoryStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read recordings directory: %w", err)
	}

	d := &DirectoryStorage{
		root:       root,
		recordings: make(map[string]*RecordingStorage),
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rec, err := loadRecording(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable recording", "recording", entry.Name(), "error", err)
			continue
		}
		d.recordings[rec.ID()] = rec
	}
	return d, nil
}

// loadRecording reads a recording's manifest back into memory.
func loadRecording(dir, id string) (*RecordingStorage, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return newRecordingStorage(id, dir, time.UnixMilli(m.StartedAt), m.Recorders), nil
}

// CreateRecording allocates a fresh recording: a random identifier, its
// directory tree, and an initial manifest.
func (d *DirectoryStorage) CreateRecording() (*RecordingStorage, error) {
	id := uuid.NewString()
	dir := filepath.Join(d.root, id)

	if err := os.MkdirAll(filepath.Join(dir, rawDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	rec := newRecordingStorage(id, dir, time.Now(), nil)

	rec.mu.Lock()
	snapshot := rec.snapshotLocked()
	rec.mu.Unlock()
	if err := writeFileAtomic(filepath.Join(dir, manifestFile), snapshot); err != nil {
		rec.Close()
		return nil, fmt.Errorf("write initial manifest: %w", err)
	}

	d.mu.Lock()
	d.recordings[id] = rec
	d.mu.Unlock()
	return rec, nil
}

// AllRecordings returns every loaded recording, oldest first.
func (d *DirectoryStorage) AllRecordings() []*RecordingStorage {
	d.mu.Lock()
	defer d.mu.Unlock()
	recs := make([]*RecordingStorage, 0, len(d.recordings))
	for _, rec := range d.recordings {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt().Before(recs[j].StartedAt())
	})
	return recs
}

// Recording returns one recording by id, or nil.
func (d *DirectoryStorage) Recording(id string) *RecordingStorage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordings[id]
}

// Root returns the recordings root path.
func (d *DirectoryStorage) Root() string { return d.root }

// Close closes every loaded recording.
func (d *DirectoryStorage) Close() {
	d.mu.Lock()
	recs := make([]*RecordingStorage, 0, len(d.recordings))
	for _, rec := range d.recordings {
		recs = append(recs, rec)
	}
	d.mu.Unlock()
	for _, rec := range recs {
		rec.Close()
	}
}
