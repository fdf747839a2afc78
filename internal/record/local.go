package record

import (
	"sync"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
)

// LocalRecorder records the local participant: it follows the shared audio
// reference feed and emits silence while no audio is shared.
type LocalRecorder struct {
	name       string
	sampleRate int
	sources    *pubsub.Feed[capture.Audio]
	chunks     *pubsub.Feed[[]float32]
	pump       *pump

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewLocalRecorder creates a recorder over the given audio reference feed
// (typically the mesh's local audio; nil records pure silence).
func NewLocalRecorder(name string, sampleRate int, sources *pubsub.Feed[capture.Audio]) *LocalRecorder {
	if sampleRate <= 0 {
		sampleRate = capture.DefaultSampleRate
	}
	r := &LocalRecorder{
		name:       name,
		sampleRate: sampleRate,
		sources:    sources,
		chunks:     pubsub.New[[]float32](),
	}
	r.pump = newPump(sampleRate, r.chunks.Publish)
	return r
}

func (r *LocalRecorder) Name() string                    { return r.name }
func (r *LocalRecorder) SampleRate() int                 { return r.sampleRate }
func (r *LocalRecorder) Chunks() *pubsub.Feed[[]float32] { return r.chunks }

// Start begins emission.
func (r *LocalRecorder) Start() error {
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

	r.pump.run(r.sources)
	return nil
}

// Stop ends emission and completes the chunk feed.
func (r *LocalRecorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.pump.stop()
	r.chunks.Close()
	return nil
}
