// Package host coordinates a multi-track recording from the host's side:
// it attaches a recorder to every current and future peer for the duration
// of a recording and streams every track into storage.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/mesh"
	"github.com/calebmer/decode-universe-sub001/internal/record"
	"github.com/calebmer/decode-universe-sub001/internal/storage"
)

const (
	// DefaultStartGrace is how long StartRecording waits after all
	// attachments are issued, a safety margin for remote recorders to begin
	// streaming before the host treats the recording as live.
	DefaultStartGrace = 500 * time.Millisecond

	// DefaultAttachTimeout bounds the wait for a remote recorder's info
	// message during attach.
	DefaultAttachTimeout = 10 * time.Second
)

var (
	// ErrRecordingActive is returned by StartRecording while a recording
	// is active.
	ErrRecordingActive = errors.New("a recording is already active")

	// ErrNoRecording is returned by StopRecording when nothing is being
	// recorded. Stopping from inactive is an error, not a no-op.
	ErrNoRecording = errors.New("no active recording")
)

// Options tunes an Orchestrator.
type Options struct {
	SampleRate    int
	StartGrace    time.Duration
	AttachTimeout time.Duration
}

// Orchestrator synchronizes start/stop of a recording across the evolving
// peer set of one mesh.
type Orchestrator struct {
	mesh          *mesh.Mesh
	dir           *storage.DirectoryStorage
	sampleRate    int
	startGrace    time.Duration
	attachTimeout time.Duration

	mu sync.Mutex
	// current doubles as the cancellation token: asynchronous steps compare
	// against it after every suspension point and abandon themselves when
	// they are no longer the active recording.
	current *session

	unsubAdded   func()
	unsubRemoved func()

	// test seam, nil outside tests
	beforeLocalAttach func()
}

// session is one Recording in progress.
type session struct {
	storage *storage.RecordingStorage

	mu        sync.Mutex
	disposals map[string]func()
	stopped   bool
}

// attach registers a track disposal under a key. It reports false when the
// session already stopped, in which case the caller must dispose itself.
func (s *session) attach(key string, dispose func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.disposals[key] = dispose
	return true
}

// detach disposes and forgets one track.
func (s *session) detach(key string) {
	s.mu.Lock()
	dispose := s.disposals[key]
	delete(s.disposals, key)
	s.mu.Unlock()
	if dispose != nil {
		dispose()
	}
}

// stop disposes every track exactly once.
func (s *session) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	disposals := s.disposals
	s.disposals = make(map[string]func())
	s.mu.Unlock()

	for _, dispose := range disposals {
		dispose()
	}
	if s.storage != nil {
		s.storage.Close()
	}
}

// New creates an orchestrator bound to a mesh and a recordings directory.
// Peers that join or leave during a recording are attached and detached
// automatically.
func New(m *mesh.Mesh, dir *storage.DirectoryStorage, opts Options) *Orchestrator {
	o := &Orchestrator{
		mesh:          m,
		dir:           dir,
		sampleRate:    opts.SampleRate,
		startGrace:    opts.StartGrace,
		attachTimeout: opts.AttachTimeout,
	}
	if o.sampleRate <= 0 {
		o.sampleRate = capture.DefaultSampleRate
	}
	if o.startGrace <= 0 {
		o.startGrace = DefaultStartGrace
	}
	if o.attachTimeout <= 0 {
		o.attachTimeout = DefaultAttachTimeout
	}

	o.unsubAdded = m.PeerAdded().Subscribe(func(peer *mesh.Peer) {
		o.mu.Lock()
		sess := o.current
		o.mu.Unlock()
		if sess != nil {
			go o.attachPeer(sess, peer)
		}
	})
	o.unsubRemoved = m.PeerRemoved().Subscribe(func(peer *mesh.Peer) {
		o.mu.Lock()
		sess := o.current
		o.mu.Unlock()
		if sess != nil {
			sess.detach(peer.Address)
		}
	})
	return o
}

// Recording reports whether a recording is active.
func (o *Orchestrator) Recording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// isCurrent is the cancellation check run after every suspension point.
func (o *Orchestrator) isCurrent(sess *session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == sess
}

// StartRecording begins a synchronized multi-track recording: a local track
// for the host plus one remote track per connected peer. It returns after
// the start grace period, or as soon as the recording is superseded.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	sess := &session{disposals: make(map[string]func())}

	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return ErrRecordingActive
	}
	o.current = sess
	o.mu.Unlock()

	rec, err := o.dir.CreateRecording()
	if err != nil {
		o.clear(sess)
		return fmt.Errorf("create recording: %w", err)
	}
	sess.storage = rec

	if !o.isCurrent(sess) {
		// Superseded while creating storage; stop may already have run with
		// no storage attached, so close it directly too.
		sess.stop()
		rec.Close()
		return nil
	}

	// The host's own track.
	name, _ := o.mesh.LocalState().Current()
	local := record.NewLocalRecorder(name.Name, o.sampleRate, o.mesh.LocalAudio())
	if o.beforeLocalAttach != nil {
		o.beforeLocalAttach()
	}
	dispose, err := rec.WriteRecorder(local)
	if err != nil {
		if !o.isCurrent(sess) {
			// A stop won the race mid-attach; the failure is a consequence
			// of that stop, not an error the caller can act on.
			sess.stop()
			return nil
		}
		o.clear(sess)
		sess.stop()
		return fmt.Errorf("attach local recorder: %w", err)
	}
	if !sess.attach("local", dispose) {
		dispose()
		return nil
	}

	var wg sync.WaitGroup
	for _, peer := range o.mesh.Peers() {
		wg.Add(1)
		go func(peer *mesh.Peer) {
			defer wg.Done()
			o.attachPeer(sess, peer)
		}(peer)
	}
	wg.Wait()

	if !o.isCurrent(sess) {
		return nil
	}

	// Safety margin: give remote recorders time to begin streaming before
	// the host considers the recording live.
	select {
	case <-time.After(o.startGrace):
	case <-ctx.Done():
	}
	return nil
}

// attachPeer opens a uniquely-labeled recording channel to one peer and
// streams its track into storage. Failures on a still-open peer escalate
// to dropping that peer; failures on an already-closed peer are the normal
// outcome of a race and are discarded silently.
func (o *Orchestrator) attachPeer(sess *session, peer *mesh.Peer) {
	if !o.isCurrent(sess) {
		return
	}

	label := record.ChannelLabelPrefix + uuid.NewString()
	dc, err := peer.CreateDataChannel(label)
	if err != nil {
		o.attachFailed(peer, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.attachTimeout)
	defer cancel()
	remote, err := record.NewRemoteRecorder(ctx, dc)
	if err != nil {
		o.attachFailed(peer, err)
		return
	}

	if !o.isCurrent(sess) {
		remote.Stop()
		return
	}

	dispose, err := sess.storage.WriteRecorder(remote)
	if err != nil {
		remote.Stop()
		o.attachFailed(peer, err)
		return
	}

	if !sess.attach(peer.Address, dispose) {
		dispose()
	}
}

func (o *Orchestrator) attachFailed(peer *mesh.Peer, err error) {
	if peer.Closed() {
		return
	}
	slog.Error("recorder attach failed", "peer", peer.Address, "error", err)
	o.mesh.DropPeer(peer.Address)
}

// StopRecording stops the active recording, detaching and finalizing every
// track.
func (o *Orchestrator) StopRecording() error {
	o.mu.Lock()
	sess := o.current
	if sess == nil {
		o.mu.Unlock()
		return ErrNoRecording
	}
	o.current = nil
	o.mu.Unlock()

	sess.stop()
	return nil
}

// clear resets the orchestrator if sess is still the active recording.
func (o *Orchestrator) clear(sess *session) {
	o.mu.Lock()
	if o.current == sess {
		o.current = nil
	}
	o.mu.Unlock()
}

// Close stops any active recording and detaches from the mesh.
func (o *Orchestrator) Close() {
	o.StopRecording()
	o.unsubAdded()
	o.unsubRemoved()
}
