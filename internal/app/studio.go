// Package app assembles one participant session: signaling, the peer mesh,
// local capture, and (for the host) recording orchestration and storage.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/config"
	"github.com/calebmer/decode-universe-sub001/internal/host"
	"github.com/calebmer/decode-universe-sub001/internal/mesh"
	"github.com/calebmer/decode-universe-sub001/internal/prefs"
	"github.com/calebmer/decode-universe-sub001/internal/record"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
	"github.com/calebmer/decode-universe-sub001/internal/signaling"
	"github.com/calebmer/decode-universe-sub001/internal/storage"
)

// Options selects how to join a room.
type Options struct {
	RoomName   string
	Name       string
	DeviceID   string
	SampleRate int

	// Host makes this participant record the session.
	Host bool

	// Mute joins with no audio shared.
	Mute bool
}

// Studio is one participant's live session.
type Studio struct {
	Config       *config.Config
	Mesh         *mesh.Mesh
	Orchestrator *host.Orchestrator
	Storage      *storage.DirectoryStorage

	prefsStore prefs.Store
	opts       Options
	source     capture.Source
}

// New wires a session together. Name and device fall back to stored
// preferences; explicit values are saved back for the next session.
func New(cfg *config.Config, store prefs.Store, opts Options) (*Studio, error) {
	if opts.RoomName == "" {
		return nil, fmt.Errorf("a room name is required")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = capture.DefaultSampleRate
	}

	if opts.Name == "" {
		opts.Name, _ = store.Get(prefs.KeyName)
	} else if err := store.Set(prefs.KeyName, opts.Name); err != nil {
		slog.Warn("save name preference failed", "error", err)
	}
	if opts.DeviceID == "" {
		opts.DeviceID, _ = store.Get(prefs.KeyDevice)
	} else if err := store.Set(prefs.KeyDevice, opts.DeviceID); err != nil {
		slog.Warn("save device preference failed", "error", err)
	}

	s := &Studio{
		Config:     cfg,
		prefsStore: store,
		opts:       opts,
	}

	var m *mesh.Mesh
	m = mesh.New(mesh.Options{
		RoomName: opts.RoomName,
		Engine:   rtc.NewPionEngine(cfg),
		Client:   signaling.NewClient(cfg.ServerURL),
		OnDataChannel: func(peer *mesh.Peer, dc rtc.DataChannel) {
			// Incoming recording channel: this participant is the recordee.
			if strings.HasPrefix(dc.Label(), record.ChannelLabelPrefix) {
				record.NewRecordee(s.opts.Name, s.opts.SampleRate, m.LocalAudio(), dc)
			}
		},
	})
	s.Mesh = m
	m.SetLocalName(opts.Name)

	if opts.Host {
		dir, err := storage.OpenDirectory(cfg.RecordingsDir)
		if err != nil {
			return nil, err
		}
		s.Storage = dir
		s.Orchestrator = host.New(m, dir, host.Options{SampleRate: opts.SampleRate})
	}

	return s, nil
}

// Connect joins the room and acquires the capture device. A capture
// failure is not fatal: the session continues without audio and the track
// records silence.
func (s *Studio) Connect(ctx context.Context) error {
	if err := s.Mesh.Connect(ctx); err != nil {
		return err
	}

	source, err := capture.NewFFmpegSource(s.opts.DeviceID, s.opts.SampleRate)
	if err != nil {
		slog.Warn("audio capture unavailable, joining silent", "error", err)
	} else {
		s.source = source
		s.Mesh.SetLocalAudio(source)
	}

	if s.opts.Mute {
		s.Mesh.Mute()
	}
	return nil
}

// Close tears the whole session down.
func (s *Studio) Close() {
	if s.Orchestrator != nil {
		s.Orchestrator.Close()
	}
	s.Mesh.Close()
	if s.source != nil {
		s.source.Close()
	}
	if s.Storage != nil {
		s.Storage.Close()
	}
}
