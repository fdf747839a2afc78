package record

import (
	"sync"
	"time"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
)

// pump drives one chunk emission loop. It follows a replaying feed of the
// current audio reference: while a source is present its chunks pass
// through; while absent, all-zero chunks are emitted at the capture cadence
// so the stream's duration always matches wall-clock time. Swapping the
// source re-subscribes without any visible seam in the output.
type pump struct {
	sampleRate int
	emit       func([]float32)

	mu          sync.Mutex
	unsubSource func()
	unsubChunks func()
	silenceStop chan struct{}
	stopped     bool
}

func newPump(sampleRate int, emit func([]float32)) *pump {
	return &pump{sampleRate: sampleRate, emit: emit}
}

// run attaches the pump to a feed of audio references. A nil feed means
// silence for the whole run.
func (p *pump) run(sources *pubsub.Feed[capture.Audio]) {
	if sources == nil {
		p.setSource(nil)
		return
	}
	unsub := sources.Subscribe(p.setSource)
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		unsub()
		return
	}
	p.unsubSource = unsub
	p.mu.Unlock()
}

// setSource swaps the live input: nil starts the silence generator.
func (p *pump) setSource(source capture.Audio) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.detachLocked()

	if source == nil {
		stop := make(chan struct{})
		p.silenceStop = stop
		p.mu.Unlock()
		go p.silence(stop)
		return
	}

	p.unsubChunks = source.Chunks().Subscribe(func(chunk []float32) {
		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()
		if !stopped {
			p.emit(chunk)
		}
	})
	p.mu.Unlock()
}

// silence emits zero chunks at the rate a real capture would.
func (p *pump) silence(stop chan struct{}) {
	ticker := time.NewTicker(capture.ChunkDuration(p.sampleRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.emit(make([]float32, capture.ChunkSamples))
		}
	}
}

func (p *pump) detachLocked() {
	if p.unsubChunks != nil {
		p.unsubChunks()
		p.unsubChunks = nil
	}
	if p.silenceStop != nil {
		close(p.silenceStop)
		p.silenceStop = nil
	}
}

// stop ends emission permanently.
func (p *pump) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.unsubSource != nil {
		p.unsubSource()
		p.unsubSource = nil
	}
	p.detachLocked()
	p.mu.Unlock()
}
