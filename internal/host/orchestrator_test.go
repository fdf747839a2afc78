package host

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/mesh"
	"github.com/calebmer/decode-universe-sub001/internal/record"
	"github.com/calebmer/decode-universe-sub001/internal/rtc/rtctest"
	"github.com/calebmer/decode-universe-sub001/internal/signal"
	"github.com/calebmer/decode-universe-sub001/internal/signaling"
	"github.com/calebmer/decode-universe-sub001/internal/storage"
)

// fastRate keeps silence generation at a 10ms cadence.
const fastRate = capture.ChunkSamples * 100

type fakeSignalClient struct {
	mu        sync.Mutex
	joinAddrs []string
	incoming  chan signaling.Incoming
	closed    bool
}

func newFakeSignalClient(joinAddrs ...string) *fakeSignalClient {
	return &fakeSignalClient{joinAddrs: joinAddrs, incoming: make(chan signaling.Incoming, 32)}
}

func (c *fakeSignalClient) Connect(ctx context.Context) error { return nil }

func (c *fakeSignalClient) Join(ctx context.Context, roomName string) ([]string, error) {
	return c.joinAddrs, nil
}

func (c *fakeSignalClient) Send(to string, s signal.Signal) {}

func (c *fakeSignalClient) Signals() <-chan signaling.Incoming { return c.incoming }

func (c *fakeSignalClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
}

type fixture struct {
	mesh   *mesh.Mesh
	engine *rtctest.FakeEngine
	client *fakeSignalClient
	dir    *storage.DirectoryStorage
	orch   *Orchestrator
}

func newFixture(t *testing.T, opts Options, joinAddrs ...string) *fixture {
	t.Helper()

	client := newFakeSignalClient(joinAddrs...)
	engine := rtctest.NewFakeEngine()
	m := mesh.New(mesh.Options{
		RoomName:         "demo",
		Engine:           engine,
		Client:           client,
		DebounceInterval: 5 * time.Millisecond,
	})
	t.Cleanup(m.Close)
	m.SetLocalName("host")

	dir, err := storage.OpenDirectory(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(dir.Close)

	if opts.SampleRate == 0 {
		opts.SampleRate = fastRate
	}
	if opts.StartGrace == 0 {
		opts.StartGrace = 10 * time.Millisecond
	}
	if opts.AttachTimeout == 0 {
		opts.AttachTimeout = 2 * time.Second
	}
	orch := New(m, dir, opts)
	t.Cleanup(orch.Close)

	require.NoError(t, m.Connect(context.Background()))
	return &fixture{mesh: m, engine: engine, client: client, dir: dir, orch: orch}
}

// answerRecordings makes a fake connection behave like a cooperating
// recordee: every recording channel created on it gets a live remote side.
func answerRecordings(conn *rtctest.FakeConn, guestName string) {
	conn.OnCreateDataChannel(func(label string, remote *rtctest.FakeDataChannel) {
		if !strings.HasPrefix(label, record.ChannelLabelPrefix) {
			return
		}
		record.NewRecordee(guestName, fastRate, nil, remote)
		remote.Open()
	})
}

func soleRecording(t *testing.T, dir *storage.DirectoryStorage) *storage.RecordingStorage {
	t.Helper()
	recs := dir.AllRecordings()
	require.Len(t, recs, 1)
	return recs[0]
}

func trackNames(rec *storage.RecordingStorage) []string {
	var names []string
	for _, info := range rec.Tracks() {
		names = append(names, info.Name)
	}
	return names
}

func TestStartRecordingCapturesHostAndPeers(t *testing.T) {
	f := newFixture(t, Options{}, "addr-guest")
	answerRecordings(f.engine.Conns()[0], "guest")

	require.NoError(t, f.orch.StartRecording(context.Background()))
	assert.True(t, f.orch.Recording())

	rec := soleRecording(t, f.dir)
	assert.ElementsMatch(t, []string{"host", "guest"}, trackNames(rec))

	// Let a few silence chunks land, then stop.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.orch.StopRecording())
	assert.False(t, f.orch.Recording())

	for id := range rec.Tracks() {
		d, err := rec.TrackDuration(id)
		require.NoError(t, err)
		assert.Positive(t, d, "every track carries audio for the recorded span")
	}
}

func TestStartWhileActiveFails(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.orch.StartRecording(context.Background()))
	assert.ErrorIs(t, f.orch.StartRecording(context.Background()), ErrRecordingActive)

	require.NoError(t, f.orch.StopRecording())
}

func TestStopWithoutRecordingFails(t *testing.T) {
	f := newFixture(t, Options{})
	assert.ErrorIs(t, f.orch.StopRecording(), ErrNoRecording)

	// And stopping twice reports the second stop as the error it is.
	require.NoError(t, f.orch.StartRecording(context.Background()))
	require.NoError(t, f.orch.StopRecording())
	assert.ErrorIs(t, f.orch.StopRecording(), ErrNoRecording)
}

func TestPeerJoiningMidRecordingIsAttached(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.orch.StartRecording(context.Background()))
	rec := soleRecording(t, f.dir)
	require.Len(t, rec.Tracks(), 1, "only the host before anyone joins")

	// Arm the recordee side before the mesh can create the connection.
	f.engine.OnNewConn(func(conn *rtctest.FakeConn) {
		answerRecordings(conn, "latecomer")
	})

	f.client.incoming <- signaling.Incoming{From: "addr-late", Signal: signal.Offer("v=0")}

	require.Eventually(t, func() bool {
		return len(rec.Tracks()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"host", "latecomer"}, trackNames(rec))

	require.NoError(t, f.orch.StopRecording())
}

func TestPeerLeavingMidRecordingIsDetached(t *testing.T) {
	f := newFixture(t, Options{}, "addr-guest")
	answerRecordings(f.engine.Conns()[0], "guest")

	require.NoError(t, f.orch.StartRecording(context.Background()))
	rec := soleRecording(t, f.dir)
	require.Len(t, rec.Tracks(), 2)

	f.mesh.DropPeer("addr-guest")

	// The guest's track stays in the manifest; only its stream ends.
	assert.Len(t, rec.Tracks(), 2)
	require.NoError(t, f.orch.StopRecording())
	assert.ElementsMatch(t, []string{"host", "guest"}, trackNames(rec))
}

func TestUnresponsivePeerIsDropped(t *testing.T) {
	// No recordee ever answers, so the attach times out.
	f := newFixture(t, Options{AttachTimeout: 50 * time.Millisecond}, "addr-mute")

	require.NoError(t, f.orch.StartRecording(context.Background()))

	assert.Nil(t, f.mesh.Peer("addr-mute"), "a peer that cannot be recorded is dropped from the mesh")

	rec := soleRecording(t, f.dir)
	assert.ElementsMatch(t, []string{"host"}, trackNames(rec), "the recording carries on without the dropped peer")

	require.NoError(t, f.orch.StopRecording())
}

func TestRecordingSupersededDuringGrace(t *testing.T) {
	f := newFixture(t, Options{StartGrace: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)
	go func() {
		started <- f.orch.StartRecording(ctx)
	}()

	require.Eventually(t, f.orch.Recording, time.Second, 5*time.Millisecond)
	require.NoError(t, f.orch.StopRecording())
	assert.False(t, f.orch.Recording())

	// The first StartRecording is still sitting in its grace period; a
	// second recording can begin meanwhile without colliding with it.
	graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer graceCancel()
	require.NoError(t, f.orch.StartRecording(graceCtx))
	require.NoError(t, f.orch.StopRecording())

	cancel()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("superseded StartRecording never returned")
	}

	assert.Len(t, f.dir.AllRecordings(), 2)
}

func TestStopDuringLocalAttachIsSilentlyDiscarded(t *testing.T) {
	f := newFixture(t, Options{})

	// Land the stop in the window between the currency check and the local
	// attach: the attach then fails against closed storage, which is the
	// supersession playing out rather than an error.
	f.orch.beforeLocalAttach = func() {
		require.NoError(t, f.orch.StopRecording())
	}

	require.NoError(t, f.orch.StartRecording(context.Background()))
	assert.False(t, f.orch.Recording())

	// The superseded recording still exists on disk, just with no tracks.
	rec := soleRecording(t, f.dir)
	assert.Empty(t, rec.Tracks())
}

func TestCloseStopsActiveRecording(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.orch.StartRecording(context.Background()))
	f.orch.Close()
	assert.False(t, f.orch.Recording())
	assert.ErrorIs(t, f.orch.StopRecording(), ErrNoRecording)
}
