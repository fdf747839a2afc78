package mesh

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
)

// stateChannelLabel is the data channel each peer pair keeps open for
// replicating participant state.
const stateChannelLabel = "state"

// Peer wraps one direct connection to a remote participant: its connection
// status, its replicated remote state, and the state channel we replicate
// our own state over.
type Peer struct {
	// Address is the signaling address of the remote participant.
	Address string

	conn           rtc.Conn
	localInitiator bool

	status      *pubsub.Feed[Status]
	remoteState *pubsub.Feed[PeerState]

	mu        sync.Mutex
	stateDC   rtc.DataChannel
	stateOpen bool
	lastLocal PeerState
	closed    bool
}

func newPeer(address string, conn rtc.Conn, localInitiator bool) *Peer {
	return &Peer{
		Address:        address,
		conn:           conn,
		localInitiator: localInitiator,
		status:         pubsub.NewReplay(StatusConnecting),
		remoteState:    pubsub.NewReplay(PeerState{}),
	}
}

// Status is a replaying feed of the peer's connection status.
func (p *Peer) Status() *pubsub.Feed[Status] { return p.status }

// RemoteState is a replaying feed of the remote participant's state as it
// replicates to us.
func (p *Peer) RemoteState() *pubsub.Feed[PeerState] { return p.remoteState }

// LocalInitiator reports whether we created this peer from the initial
// address list rather than from an incoming offer.
func (p *Peer) LocalInitiator() bool { return p.localInitiator }

// CreateDataChannel opens a new labeled channel to this peer.
func (p *Peer) CreateDataChannel(label string) (rtc.DataChannel, error) {
	return p.conn.CreateDataChannel(label)
}

// Closed reports whether the peer has been torn down.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) setStatus(state rtc.ConnState) {
	p.status.Publish(statusOf(state))
}

// bindStateChannel attaches the replication channel: once open, the current
// local state is sent and every later change follows; incoming messages are
// mirrored into the remote state feed.
func (p *Peer) bindStateChannel(dc rtc.DataChannel) {
	p.mu.Lock()
	p.stateDC = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.stateOpen = true
		state := p.lastLocal
		p.mu.Unlock()
		p.writeState(dc, state)
	})

	dc.OnMessage(func(msg rtc.Message) {
		var state PeerState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			slog.Warn("bad peer state message", "peer", p.Address, "error", err)
			return
		}
		p.remoteState.Publish(state)
	})

	dc.OnClose(func() {
		p.mu.Lock()
		p.stateOpen = false
		p.mu.Unlock()
	})
}

// sendLocalState replicates a local state change to this peer. Changes made
// before the state channel opens are held and flushed by OnOpen.
func (p *Peer) sendLocalState(state PeerState) {
	p.mu.Lock()
	p.lastLocal = state
	dc := p.stateDC
	open := p.stateOpen
	p.mu.Unlock()

	if open && dc != nil {
		p.writeState(dc, state)
	}
}

func (p *Peer) writeState(dc rtc.DataChannel, state PeerState) {
	b, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := dc.SendText(string(b)); err != nil {
		slog.Warn("send peer state failed", "peer", p.Address, "error", err)
	}
}

// close tears the peer down and completes its feeds.
func (p *Peer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.status.Publish(StatusDisconnected)
	p.conn.Close()
	p.status.Close()
	p.remoteState.Close()
}
