// Package storage persists recordings as flat files: one directory per
// recording holding a JSON manifest plus one headerless raw file of
// little-endian float32 samples per track. Track duration is derived from
// file size (bytes / 4 / sampleRate); no length field is stored.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/record"
)

const (
	manifestFile = "manifest.json"
	rawDirName   = "raw"
)

// ErrStorageClosed is returned by writes against a closed recording.
var ErrStorageClosed = errors.New("recording storage closed")

// TrackInfo is the immutable metadata of one recorded track.
type TrackInfo struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sampleRate"`

	// StartedAtDelta is the track's start offset in milliseconds since the
	// recording started, used to time-align tracks when mixing.
	StartedAtDelta int64 `json:"startedAtDelta"`
}

// manifest is the on-disk index of one recording.
type manifest struct {
	StartedAt int64                `json:"startedAt"` // epoch milliseconds
	Recorders map[string]TrackInfo `json:"recorders"`
}

// RecordingStorage owns the manifest and track files of one recording.
//
// Manifest writes are strictly serialized: snapshots are marshaled under
// the lock and written in order by a single saver goroutine, each as a
// whole-file replace via temp file + rename. Concurrent WriteRecorder
// calls can therefore never interleave or lose a manifest write, and the
// on-disk file is always complete, valid JSON.
type RecordingStorage struct {
	id        string
	dir       string
	startedAt time.Time

	mu     sync.Mutex
	tracks map[string]TrackInfo

	saveMu     sync.RWMutex
	saves      chan []byte
	saveClosed bool
	saverDone  sync.WaitGroup
}

func newRecordingStorage(id, dir string, startedAt time.Time, tracks map[string]TrackInfo) *RecordingStorage {
	if tracks == nil {
		tracks = make(map[string]TrackInfo)
	}
	r := &RecordingStorage{
		id:        id,
		dir:       dir,
		startedAt: startedAt,
		tracks:    tracks,
		saves:     make(chan []byte, 64),
	}
	r.saverDone.Add(1)
	go r.saver()
	return r
}

// ID is the recording's directory name.
func (r *RecordingStorage) ID() string { return r.id }

// StartedAt is when the recording began.
func (r *RecordingStorage) StartedAt() time.Time { return r.startedAt }

// Tracks returns a copy of the current track metadata map.
func (r *RecordingStorage) Tracks() map[string]TrackInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	tracks := make(map[string]TrackInfo, len(r.tracks))
	for id, info := range r.tracks {
		tracks[id] = info
	}
	return tracks
}

// TrackDuration derives a track's duration from its raw file size.
func (r *RecordingStorage) TrackDuration(trackID string) (time.Duration, error) {
	r.mu.Lock()
	info, ok := r.tracks[trackID]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no track %s in recording %s", trackID, r.id)
	}

	stat, err := os.Stat(filepath.Join(r.dir, rawDirName, trackID))
	if err != nil {
		return 0, err
	}
	samples := stat.Size() / capture.BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(info.SampleRate), nil
}

// WriteRecorder attaches a recorder as a new track: it registers the track
// metadata, persists the manifest, starts the recorder if needed, and
// streams its chunks into the track's raw file. The returned disposal
// stops writing, finalizes the file, stops the recorder if still running,
// and is safe to call more than once.
func (r *RecordingStorage) WriteRecorder(rec record.Recorder) (dispose func(), err error) {
	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		return nil, ErrStorageClosed
	}
	trackID := uuid.NewString()
	r.tracks[trackID] = TrackInfo{
		Name:           rec.Name(),
		SampleRate:     rec.SampleRate(),
		StartedAtDelta: time.Since(r.startedAt).Milliseconds(),
	}
	// Enqueue before releasing the lock so concurrent attaches cannot
	// reorder their snapshots; a stale snapshot overwriting a newer one
	// would silently drop a track from the manifest.
	r.enqueue(r.snapshotLocked())
	r.mu.Unlock()

	// An attach that fails past this point must retract the track, or the
	// manifest would forever advertise a track with no raw file.
	fail := func(err error) (func(), error) {
		r.mu.Lock()
		delete(r.tracks, trackID)
		r.enqueue(r.snapshotLocked())
		r.mu.Unlock()
		return nil, err
	}

	path := filepath.Join(r.dir, rawDirName, trackID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fail(fmt.Errorf("create track file: %w", err))
	}

	if err := rec.Start(); err != nil && !errors.Is(err, record.ErrAlreadyStarted) {
		file.Close()
		os.Remove(path)
		return fail(fmt.Errorf("start recorder: %w", err))
	}

	writer := &trackWriter{file: file}
	unsubscribe := rec.Chunks().Subscribe(writer.write)

	var once sync.Once
	dispose = func() {
		once.Do(func() {
			unsubscribe()
			writer.close()
			rec.Stop()
		})
	}
	return dispose, nil
}

func (r *RecordingStorage) snapshotLocked() []byte {
	m := manifest{
		StartedAt: r.startedAt.UnixMilli(),
		Recorders: make(map[string]TrackInfo, len(r.tracks)),
	}
	for id, info := range r.tracks {
		m.Recorders[id] = info
	}
	b, err := json.Marshal(m)
	if err != nil {
		// The manifest is plain structs; this cannot fail in practice.
		slog.Error("marshal manifest failed", "recording", r.id, "error", err)
		return nil
	}
	return b
}

func (r *RecordingStorage) isClosed() bool {
	r.saveMu.RLock()
	defer r.saveMu.RUnlock()
	return r.saveClosed
}

// enqueue hands one manifest snapshot to the saver, preserving order.
func (r *RecordingStorage) enqueue(snapshot []byte) {
	if snapshot == nil {
		return
	}
	r.saveMu.RLock()
	defer r.saveMu.RUnlock()
	if r.saveClosed {
		return
	}
	r.saves <- snapshot
}

// saver writes queued manifest snapshots one at a time, in order.
func (r *RecordingStorage) saver() {
	defer r.saverDone.Done()
	path := filepath.Join(r.dir, manifestFile)
	for snapshot := range r.saves {
		if err := writeFileAtomic(path, snapshot); err != nil {
			slog.Error("write manifest failed", "recording", r.id, "error", err)
		}
	}
}

// Close drains and stops the manifest saver. Open track writers must be
// disposed by their owners first.
func (r *RecordingStorage) Close() {
	r.saveMu.Lock()
	if r.saveClosed {
		r.saveMu.Unlock()
		return
	}
	r.saveClosed = true
	close(r.saves)
	r.saveMu.Unlock()
	r.saverDone.Wait()
}

// writeFileAtomic replaces path with data via a temp file and rename, so a
// crash mid-write never leaves a partial file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// trackWriter appends encoded chunks to one raw file. The feed delivers
// chunks from a single producer, so writes never interleave; the mutex only
// fences writing against close.
type trackWriter struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (w *trackWriter) write(chunk []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if _, err := w.file.Write(record.EncodeChunk(chunk)); err != nil {
		slog.Error("append track chunk failed", "error", err)
	}
}

func (w *trackWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.file.Sync()
	w.file.Close()
}
