package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
	"github.com/calebmer/decode-universe-sub001/internal/signal"
	"github.com/calebmer/decode-universe-sub001/internal/signaling"
)

// DefaultDebounceInterval is how long a renegotiation request waits for
// further triggers before an offer is actually sent. Bursts of triggers
// collapse into a single offer.
const DefaultDebounceInterval = 200 * time.Millisecond

// SignalClient is the slice of the signaling client the mesh depends on.
// *signaling.Client satisfies it.
type SignalClient interface {
	Connect(ctx context.Context) error
	Join(ctx context.Context, roomName string) ([]string, error)
	Send(to string, s signal.Signal)
	Signals() <-chan signaling.Incoming
	Close()
}

// Options configures a Mesh.
type Options struct {
	RoomName string
	Engine   rtc.Engine
	Client   SignalClient

	// DebounceInterval overrides DefaultDebounceInterval when positive.
	DebounceInterval time.Duration

	// OnDataChannel is the behavioral hook invoked when a peer opens a
	// channel other than the state channel (e.g. a recording channel).
	OnDataChannel func(*Peer, rtc.DataChannel)
}

// Mesh owns the set of peers for one room.
type Mesh struct {
	roomName      string
	engine        rtc.Engine
	client        SignalClient
	debounceEvery time.Duration
	onDataChannel func(*Peer, rtc.DataChannel)

	mu         sync.Mutex
	peers      map[string]*Peer
	order      []string
	stateSubs  map[string]func()
	debounce   map[string]*time.Timer
	localState PeerState
	muted      bool
	savedAudio AudioSource
	connected  bool
	closed     bool

	localStateFeed *pubsub.Feed[PeerState]
	localAudio     *pubsub.Feed[AudioSource]
	peerAdded      *pubsub.Feed[*Peer]
	peerRemoved    *pubsub.Feed[*Peer]
}

// New creates a mesh for the given room. Connect must be called before the
// mesh does anything.
func New(opts Options) *Mesh {
	debounceEvery := opts.DebounceInterval
	if debounceEvery <= 0 {
		debounceEvery = DefaultDebounceInterval
	}
	return &Mesh{
		roomName:       opts.RoomName,
		engine:         opts.Engine,
		client:         opts.Client,
		debounceEvery:  debounceEvery,
		onDataChannel:  opts.OnDataChannel,
		peers:          make(map[string]*Peer),
		stateSubs:      make(map[string]func()),
		debounce:       make(map[string]*time.Timer),
		localStateFeed: pubsub.NewReplay(PeerState{}),
		localAudio:     pubsub.NewReplay[AudioSource](nil),
		peerAdded:      pubsub.New[*Peer](),
		peerRemoved:    pubsub.New[*Peer](),
	}
}

// Connect opens the signaling client, joins the room, and creates a
// local-initiator peer for every member already present. Negotiation with
// those peers proceeds asynchronously after Connect returns.
func (m *Mesh) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.connected = true
	m.mu.Unlock()

	if err := m.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	addrs, err := m.client.Join(ctx, m.roomName)
	if err != nil {
		return fmt.Errorf("join room %q: %w", m.roomName, err)
	}

	go m.readSignals()

	for _, addr := range addrs {
		if _, err := m.addPeer(addr, true); err != nil {
			slog.Warn("create peer failed", "peer", addr, "error", err)
			continue
		}
		m.ScheduleNegotiation(addr)
	}
	return nil
}

// readSignals dispatches relayed signals until the signaling stream ends.
func (m *Mesh) readSignals() {
	for in := range m.client.Signals() {
		if err := m.handleSignal(in); err != nil {
			if errors.Is(err, ErrUnknownAddress) {
				slog.Error("signaling protocol violation", "error", err)
			} else {
				slog.Warn("negotiation error", "peer", in.From, "error", err)
			}
		}
	}
}

// handleSignal runs the per-peer negotiation state machine for one signal.
// An offer for an unknown address creates a remote-initiator peer; any
// other signal for an unknown address is a protocol violation fatal to this
// message only.
func (m *Mesh) handleSignal(in signaling.Incoming) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	peer := m.peers[in.From]
	m.mu.Unlock()

	if peer == nil {
		if in.Signal.Type != signal.TypeOffer {
			return fmt.Errorf("%w: %s signal from %s", ErrUnknownAddress, in.Signal.Type, in.From)
		}
		var err error
		peer, err = m.addPeer(in.From, false)
		if err != nil {
			return fmt.Errorf("create peer for %s: %w", in.From, err)
		}
	}

	switch in.Signal.Type {
	case signal.TypeOffer:
		if err := peer.conn.SetRemoteDescription(rtc.SessionDescription{Type: "offer", SDP: in.Signal.SDP}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := peer.conn.CreateAnswer()
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := peer.conn.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		m.client.Send(in.From, signal.Answer(answer.SDP))

	case signal.TypeAnswer:
		if err := peer.conn.SetRemoteDescription(rtc.SessionDescription{Type: "answer", SDP: in.Signal.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}

	case signal.TypeCandidate:
		// Candidates may arrive before or after descriptions and may repeat;
		// the engine tolerates both.
		if err := peer.conn.AddICECandidate(rtc.ICECandidate{
			SDPMLineIndex: in.Signal.SDPMLineIndex,
			Candidate:     in.Signal.Candidate,
		}); err != nil {
			return fmt.Errorf("add candidate: %w", err)
		}
	}
	return nil
}

// addPeer creates and registers a peer for the given address.
func (m *Mesh) addPeer(address string, localInitiator bool) (*Peer, error) {
	conn, err := m.engine.NewConn()
	if err != nil {
		return nil, err
	}

	peer := newPeer(address, conn, localInitiator)

	conn.OnICECandidate(func(c rtc.ICECandidate) {
		// Forward as produced, unbatched.
		m.client.Send(address, signal.NewCandidate(c.SDPMLineIndex, c.Candidate))
	})

	conn.OnStateChange(func(state rtc.ConnState) {
		peer.setStatus(state)
		if state.Terminal() {
			m.removePeer(address)
		}
	})

	conn.OnDataChannel(func(dc rtc.DataChannel) {
		if dc.Label() == stateChannelLabel {
			peer.bindStateChannel(dc)
			return
		}
		if m.onDataChannel != nil {
			m.onDataChannel(peer, dc)
		}
	})

	if localInitiator {
		dc, err := conn.CreateDataChannel(stateChannelLabel)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create state channel: %w", err)
		}
		peer.bindStateChannel(dc)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	m.peers[address] = peer
	m.order = append(m.order, address)
	m.mu.Unlock()

	// Replays the current local state into the peer and keeps it updated.
	unsub := m.localStateFeed.Subscribe(peer.sendLocalState)
	m.mu.Lock()
	m.stateSubs[address] = unsub
	m.mu.Unlock()

	m.peerAdded.Publish(peer)
	return peer, nil
}

// removePeer tears one peer down and emits the removal event. This is the
// only teardown path other than Close.
func (m *Mesh) removePeer(address string) {
	m.mu.Lock()
	peer, ok := m.peers[address]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.peers, address)
	for i, addr := range m.order {
		if addr == address {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if t, ok := m.debounce[address]; ok {
		t.Stop()
		delete(m.debounce, address)
	}
	unsub := m.stateSubs[address]
	delete(m.stateSubs, address)
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	peer.close()
	m.peerRemoved.Publish(peer)
}

// DropPeer forcibly tears down the peer at the given address, as if its
// connection had failed.
func (m *Mesh) DropPeer(address string) {
	m.removePeer(address)
}

// ScheduleNegotiation requests a (re)negotiation with the given address.
// Requests within the debounce interval refresh the pending timer, so a
// burst of triggers produces exactly one offer.
func (m *Mesh) ScheduleNegotiation(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t, ok := m.debounce[address]; ok {
		t.Reset(m.debounceEvery)
		return
	}
	m.debounce[address] = time.AfterFunc(m.debounceEvery, func() {
		m.mu.Lock()
		delete(m.debounce, address)
		peer := m.peers[address]
		m.mu.Unlock()
		if peer == nil {
			return
		}
		m.negotiate(peer)
	})
}

// negotiate creates and sends one offer. Failures are logged; a dropped
// offer is recovered by the next renegotiation trigger.
func (m *Mesh) negotiate(peer *Peer) {
	offer, err := peer.conn.CreateOffer()
	if err != nil {
		slog.Warn("create offer failed", "peer", peer.Address, "error", err)
		return
	}
	if err := peer.conn.SetLocalDescription(offer); err != nil {
		slog.Warn("set local offer failed", "peer", peer.Address, "error", err)
		return
	}
	m.client.Send(peer.Address, signal.Offer(offer.SDP))
}

// SetLocalName updates the local participant's display name and replicates
// it to every peer.
func (m *Mesh) SetLocalName(name string) {
	m.mu.Lock()
	m.localState.Name = name
	state := m.localState
	m.mu.Unlock()
	m.localStateFeed.Publish(state)
}

// Mute removes the outgoing audio reference entirely, remembering it so
// Unmute can restore it exactly. A muted participant shares no audio
// object at all, not a silenced one.
func (m *Mesh) Mute() {
	m.mu.Lock()
	if m.muted {
		m.mu.Unlock()
		return
	}
	m.muted = true
	m.localState.IsMuted = true
	state := m.localState
	current, _ := m.localAudio.Current()
	m.savedAudio = current
	m.mu.Unlock()

	m.localStateFeed.Publish(state)
	m.localAudio.Publish(nil)
}

// Unmute restores the audio reference remembered by Mute, or whatever
// SetLocalAudio buffered while muted.
func (m *Mesh) Unmute() {
	m.mu.Lock()
	if !m.muted {
		m.mu.Unlock()
		return
	}
	m.muted = false
	m.localState.IsMuted = false
	state := m.localState
	restored := m.savedAudio
	m.savedAudio = nil
	m.mu.Unlock()

	m.localStateFeed.Publish(state)
	m.localAudio.Publish(restored)
}

// SetLocalAudio shares a new audio reference with the mesh. While muted the
// reference is buffered, not applied, and replayed on unmute.
func (m *Mesh) SetLocalAudio(source AudioSource) {
	m.mu.Lock()
	if m.muted {
		m.savedAudio = source
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.localAudio.Publish(source)
}

// UnsetLocalAudio removes the shared audio reference.
func (m *Mesh) UnsetLocalAudio() {
	m.SetLocalAudio(nil)
}

// Peers returns the current peers in join order.
func (m *Mesh) Peers() []*Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]*Peer, 0, len(m.order))
	for _, addr := range m.order {
		peers = append(peers, m.peers[addr])
	}
	return peers
}

// Peer returns the peer at the given address, or nil.
func (m *Mesh) Peer(address string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[address]
}

// RoomName returns the room this mesh is scoped to.
func (m *Mesh) RoomName() string { return m.roomName }

// LocalState is a replaying feed of the local participant's state.
func (m *Mesh) LocalState() *pubsub.Feed[PeerState] { return m.localStateFeed }

// LocalAudio is a replaying feed of the local audio reference; nil while
// muted or unset.
func (m *Mesh) LocalAudio() *pubsub.Feed[AudioSource] { return m.localAudio }

// PeerAdded is a discrete feed of peers as they are created.
func (m *Mesh) PeerAdded() *pubsub.Feed[*Peer] { return m.peerAdded }

// PeerRemoved is a discrete feed of peers as they are torn down.
func (m *Mesh) PeerRemoved() *pubsub.Feed[*Peer] { return m.peerRemoved }

// Close closes the signaling client and every peer and completes all public
// feeds.
func (m *Mesh) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	peers := make([]*Peer, 0, len(m.peers))
	for _, peer := range m.peers {
		peers = append(peers, peer)
	}
	m.peers = make(map[string]*Peer)
	m.order = nil
	for _, t := range m.debounce {
		t.Stop()
	}
	m.debounce = make(map[string]*time.Timer)
	subs := m.stateSubs
	m.stateSubs = make(map[string]func())
	m.mu.Unlock()

	m.client.Close()
	for _, unsub := range subs {
		unsub()
	}
	for _, peer := range peers {
		peer.close()
	}

	m.peerAdded.Close()
	m.peerRemoved.Close()
	m.localStateFeed.Close()
	m.localAudio.Close()
}
