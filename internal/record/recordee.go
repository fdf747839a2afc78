package record

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
)

// Recordee is the recorded end of the protocol. It announces itself on
// channel open, waits for "start", then streams chunks from the shared
// audio reference (silence when none is shared) until the channel closes.
// A close before "start" is simply a no-op teardown.
type Recordee struct {
	name       string
	sampleRate int
	sources    *pubsub.Feed[capture.Audio]
	dc         rtc.DataChannel

	mu      sync.Mutex
	started bool
	closed  bool
	pump    *pump
}

// NewRecordee attaches the recorded side to an incoming recording channel.
func NewRecordee(name string, sampleRate int, sources *pubsub.Feed[capture.Audio], dc rtc.DataChannel) *Recordee {
	if sampleRate <= 0 {
		sampleRate = capture.DefaultSampleRate
	}
	r := &Recordee{
		name:       name,
		sampleRate: sampleRate,
		sources:    sources,
		dc:         dc,
	}
	r.pump = newPump(sampleRate, r.send)

	dc.OnOpen(func() {
		b, err := json.Marshal(info{Name: r.name, SampleRate: r.sampleRate})
		if err != nil {
			return
		}
		if err := dc.SendText(string(b)); err != nil {
			slog.Warn("send recorder info failed", "channel", dc.Label(), "error", err)
		}
	})

	dc.OnMessage(func(msg rtc.Message) {
		if !msg.IsString || string(msg.Data) != startMessage {
			return
		}
		r.start()
	})

	dc.OnError(func(err error) {
		slog.Warn("recording channel error", "channel", dc.Label(), "error", err)
	})

	dc.OnClose(func() {
		r.Close()
	})

	return r
}

func (r *Recordee) start() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.started {
		r.mu.Unlock()
		// Double start never travels the wire; it is a local error.
		slog.Error("recordee started twice", "channel", r.dc.Label())
		return
	}
	r.started = true
	r.mu.Unlock()

	r.pump.run(r.sources)
}

// send encodes one chunk onto the wire.
func (r *Recordee) send(chunk []float32) {
	if err := r.dc.Send(EncodeChunk(chunk)); err != nil {
		slog.Warn("send audio chunk failed", "channel", r.dc.Label(), "error", err)
	}
}

// Close stops emission and releases the capture subscription. It is safe
// whether or not streaming ever started.
func (r *Recordee) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.pump.stop()
	r.dc.Close()
}
