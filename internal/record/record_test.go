package record

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
	"github.com/calebmer/decode-universe-sub001/internal/rtc/rtctest"
)

// fastRate makes one chunk cover 10ms so silence tests stay quick.
const fastRate = capture.ChunkSamples * 100

// testAudio is an Audio backed by a feed the test publishes into.
type testAudio struct {
	rate   int
	chunks *pubsub.Feed[[]float32]
}

func newTestAudio(rate int) *testAudio {
	return &testAudio{rate: rate, chunks: pubsub.New[[]float32]()}
}

func (a *testAudio) SampleRate() int                 { return a.rate }
func (a *testAudio) Chunks() *pubsub.Feed[[]float32] { return a.chunks }

// chunkCollector gathers published chunks behind a lock.
type chunkCollector struct {
	mu     sync.Mutex
	chunks [][]float32
}

func (c *chunkCollector) collect(chunk []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *chunkCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func (c *chunkCollector) all() [][]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]float32, len(c.chunks))
	copy(out, c.chunks)
	return out
}

func TestChunkCodec(t *testing.T) {
	samples := []float32{0, 1, -1, 0.5, -0.25, 3.14159}
	assert.Equal(t, samples, DecodeChunk(EncodeChunk(samples)))

	// Trailing partial samples are dropped rather than misread.
	b := append(EncodeChunk([]float32{1, 2}), 0xde, 0xad)
	assert.Equal(t, []float32{1, 2}, DecodeChunk(b))
}

func TestLocalRecorderEmitsSilenceWithoutAudio(t *testing.T) {
	rec := NewLocalRecorder("caleb", fastRate, nil)
	assert.Equal(t, "caleb", rec.Name())
	assert.Equal(t, fastRate, rec.SampleRate())

	var got chunkCollector
	rec.Chunks().Subscribe(got.collect)

	require.NoError(t, rec.Start())
	defer rec.Stop()

	require.Eventually(t, func() bool { return got.count() >= 3 }, time.Second, 5*time.Millisecond)

	for _, chunk := range got.all()[:3] {
		require.Len(t, chunk, capture.ChunkSamples)
		for _, sample := range chunk {
			if sample != 0 {
				t.Fatal("silence chunks must be all zero")
			}
		}
	}
}

func TestLocalRecorderFollowsAudioReference(t *testing.T) {
	audio := newTestAudio(fastRate)
	sources := pubsub.NewReplay[capture.Audio](audio)

	rec := NewLocalRecorder("caleb", fastRate, sources)

	var got chunkCollector
	rec.Chunks().Subscribe(got.collect)

	require.NoError(t, rec.Start())
	defer rec.Stop()

	chunk := make([]float32, capture.ChunkSamples)
	chunk[0] = 0.75
	audio.chunks.Publish(chunk)

	require.Equal(t, 1, got.count())
	assert.Equal(t, float32(0.75), got.all()[0][0])

	// Removing the reference switches to generated silence.
	sources.Publish(nil)
	require.Eventually(t, func() bool { return got.count() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float32(0), got.all()[1][0])
}

func TestLocalRecorderLifecycle(t *testing.T) {
	rec := NewLocalRecorder("caleb", fastRate, nil)

	require.NoError(t, rec.Start())
	assert.ErrorIs(t, rec.Start(), ErrAlreadyStarted)

	require.NoError(t, rec.Stop())
	require.NoError(t, rec.Stop())

	assert.ErrorIs(t, rec.Start(), ErrStopped)
}

// handshake wires a recordee and a remote recorder across an in-memory
// channel pair and completes the info exchange.
func handshake(t *testing.T, sources *pubsub.Feed[capture.Audio]) (*RemoteRecorder, *Recordee, *rtctest.FakeDataChannel) {
	t.Helper()
	recorderEnd, recordeeEnd := rtctest.NewChannelPair(ChannelLabelPrefix + "test")

	recordee := NewRecordee("guest", fastRate, sources, recordeeEnd)
	recorderEnd.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rec, err := NewRemoteRecorder(ctx, recorderEnd)
	require.NoError(t, err)
	return rec, recordee, recordeeEnd
}

func TestRecordingProtocolEndToEnd(t *testing.T) {
	audio := newTestAudio(fastRate)
	sources := pubsub.NewReplay[capture.Audio](audio)

	rec, recordee, _ := handshake(t, sources)
	defer recordee.Close()

	assert.Equal(t, "guest", rec.Name())
	assert.Equal(t, fastRate, rec.SampleRate())

	var got chunkCollector
	rec.Chunks().Subscribe(got.collect)

	require.NoError(t, rec.Start())

	chunk := make([]float32, capture.ChunkSamples)
	chunk[0] = 0.5
	chunk[capture.ChunkSamples-1] = -0.5
	audio.chunks.Publish(chunk)

	require.Equal(t, 1, got.count())
	decoded := got.all()[0]
	require.Len(t, decoded, capture.ChunkSamples)
	assert.Equal(t, float32(0.5), decoded[0])
	assert.Equal(t, float32(-0.5), decoded[capture.ChunkSamples-1])

	require.NoError(t, rec.Stop())
}

func TestChunksBeforeStartAreIgnored(t *testing.T) {
	// A live but quiet source keeps the silence generator out of the way.
	sources := pubsub.NewReplay[capture.Audio](newTestAudio(fastRate))
	rec, recordee, recordeeEnd := handshake(t, sources)
	defer recordee.Close()

	var got chunkCollector
	rec.Chunks().Subscribe(got.collect)

	// Binary data arriving before "start" must not surface.
	require.NoError(t, recordeeEnd.Send(EncodeChunk([]float32{1, 2, 3})))
	assert.Equal(t, 0, got.count())

	require.NoError(t, rec.Start())
	require.NoError(t, recordeeEnd.Send(EncodeChunk([]float32{1, 2, 3})))
	assert.Equal(t, 1, got.count())
}

func TestRemoteRecorderDoubleStart(t *testing.T) {
	rec, recordee, _ := handshake(t, nil)
	defer recordee.Close()

	require.NoError(t, rec.Start())
	assert.ErrorIs(t, rec.Start(), ErrAlreadyStarted)
}

func TestStopBeforeStartTearsDownCleanly(t *testing.T) {
	rec, _, recordeeEnd := handshake(t, nil)

	require.NoError(t, rec.Stop())
	assert.True(t, recordeeEnd.Closed(), "closing the recorder closes the recordee's end too")
	assert.ErrorIs(t, rec.Start(), ErrStopped)
}

func TestRemoteRecorderInfoTimeout(t *testing.T) {
	recorderEnd, _ := rtctest.NewChannelPair(ChannelLabelPrefix + "test")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewRemoteRecorder(ctx, recorderEnd)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, recorderEnd.Closed())
}

func TestRecordeeAnnouncesOnOpen(t *testing.T) {
	recorderEnd, recordeeEnd := rtctest.NewChannelPair(ChannelLabelPrefix + "test")

	recordee := NewRecordee("", 0, nil, recordeeEnd)
	defer recordee.Close()
	recorderEnd.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rec, err := NewRemoteRecorder(ctx, recorderEnd)
	require.NoError(t, err)

	// Defaults fill in when the recordee has nothing configured.
	assert.Equal(t, "", rec.Name())
	assert.Equal(t, capture.DefaultSampleRate, rec.SampleRate())
}
