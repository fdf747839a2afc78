// Package capture acquires live audio from the machine's input devices.
// Sources emit fixed-size mono float32 chunks on a feed; the recording
// protocol consumes them without knowing where they came from.
package capture

import (
	"time"

	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
)

const (
	// DefaultSampleRate is the capture rate used when the caller does not
	// choose one.
	DefaultSampleRate = 44100

	// ChunkSamples is the number of samples per emitted chunk. It matches
	// the recording wire protocol's chunk size.
	ChunkSamples = 16384

	// BytesPerSample is the width of one little-endian float32 sample.
	BytesPerSample = 4
)

// ChunkDuration is the wall-clock time one chunk covers at the given rate.
// Silence generators tick at this cadence so a silent track's byte length
// still tracks elapsed time.
func ChunkDuration(sampleRate int) time.Duration {
	return time.Duration(ChunkSamples) * time.Second / time.Duration(sampleRate)
}

// Audio is a live audio reference: anything that emits chunk-sized mono
// float32 buffers at a known rate.
type Audio interface {
	SampleRate() int
	Chunks() *pubsub.Feed[[]float32]
}

// Source is a closeable audio input device.
type Source interface {
	Audio
	Close() error
}
