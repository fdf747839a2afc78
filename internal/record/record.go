// Package record implements the audio recording protocol spoken over one
// data channel per recording-per-peer, and the recorders on either end of
// it.
//
// The wire exchange is: on channel open the recordee (the side being
// recorded) sends a JSON info message {name, sampleRate}; the recorder
// replies with the literal JSON value "start" once it is ready; from then
// on the recordee emits fixed-size binary chunks of little-endian float32
// samples until either side closes the channel. There is no end-of-stream
// marker; termination is inferred from channel close.
package record

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
)

// startMessage is the literal JSON value the recorder sends to begin the
// chunk stream.
const startMessage = `"start"`

// ChannelLabelPrefix marks a data channel as a recording channel. Each
// recording-per-peer channel gets a unique label under this prefix.
const ChannelLabelPrefix = "recording:"

var (
	// ErrAlreadyStarted is the local programming error of starting a
	// recorder twice. It is reported to the caller, never sent on the wire.
	ErrAlreadyStarted = errors.New("recorder already started")

	// ErrStopped is returned when starting a recorder that already stopped.
	ErrStopped = errors.New("recorder already stopped")
)

// Recorder is a source of recorded audio chunks, local or relayed from a
// remote peer. A recorder is single-use: once stopped it cannot restart.
type Recorder interface {
	// Name is the participant name this track belongs to.
	Name() string

	// SampleRate is the rate of the sample stream.
	SampleRate() int

	// Start begins the chunk stream. Starting twice is ErrAlreadyStarted.
	Start() error

	// Stop ends the chunk stream and releases the underlying capture. It
	// is idempotent.
	Stop() error

	// Chunks is the live stream of recorded chunks.
	Chunks() *pubsub.Feed[[]float32]
}

// info is the first protocol message, recordee to recorder.
type info struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sampleRate"`
}

// EncodeChunk serializes samples as little-endian float32 bytes.
func EncodeChunk(samples []float32) []byte {
	out := make([]byte, len(samples)*capture.BytesPerSample)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(out[i*capture.BytesPerSample:], math.Float32bits(sample))
	}
	return out
}

// DecodeChunk deserializes little-endian float32 bytes. Trailing bytes that
// do not form a whole sample are dropped.
func DecodeChunk(b []byte) []float32 {
	samples := make([]float32, len(b)/capture.BytesPerSample)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(b[i*capture.BytesPerSample:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
