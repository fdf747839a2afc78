package record

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
)

// RemoteRecorder is the collector end of the recording protocol: it waits
// for the recordee's info message, sends "start" when the host is ready,
// and relays the incoming binary chunks into its feed.
type RemoteRecorder struct {
	dc         rtc.DataChannel
	name       string
	sampleRate int
	chunks     *pubsub.Feed[[]float32]

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRemoteRecorder attaches to a freshly created recording channel and
// blocks until the remote side's info message arrives (or ctx expires).
func NewRemoteRecorder(ctx context.Context, dc rtc.DataChannel) (*RemoteRecorder, error) {
	r := &RemoteRecorder{
		dc:     dc,
		chunks: pubsub.New[[]float32](),
	}

	infoCh := make(chan info, 1)
	gotInfo := false

	dc.OnMessage(func(msg rtc.Message) {
		if msg.IsString {
			if gotInfo {
				return
			}
			var in info
			if err := json.Unmarshal(msg.Data, &in); err != nil {
				slog.Warn("bad recording info message", "channel", dc.Label(), "error", err)
				return
			}
			gotInfo = true
			infoCh <- in
			return
		}

		r.mu.Lock()
		deliver := r.started && !r.stopped
		r.mu.Unlock()
		if deliver {
			r.chunks.Publish(DecodeChunk(msg.Data))
		}
	})

	dc.OnError(func(err error) {
		slog.Warn("recording channel error", "channel", dc.Label(), "error", err)
	})

	// A channel close always finalizes the stream, started or not.
	dc.OnClose(func() {
		r.finalize()
	})

	select {
	case in := <-infoCh:
		r.name = in.Name
		r.sampleRate = in.SampleRate
		return r, nil
	case <-ctx.Done():
		dc.Close()
		return nil, fmt.Errorf("wait for recorder info: %w", ctx.Err())
	}
}

func (r *RemoteRecorder) Name() string                    { return r.name }
func (r *RemoteRecorder) SampleRate() int                 { return r.sampleRate }
func (r *RemoteRecorder) Chunks() *pubsub.Feed[[]float32] { return r.chunks }

// Start tells the recordee to begin streaming.
func (r *RemoteRecorder) Start() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	if err := r.dc.SendText(startMessage); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	return nil
}

// Stop closes the channel, which ends the stream on both sides.
func (r *RemoteRecorder) Stop() error {
	r.dc.Close()
	r.finalize()
	return nil
}

func (r *RemoteRecorder) finalize() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()
	r.chunks.Close()
}
