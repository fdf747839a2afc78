// Package rtctest provides in-memory fakes for the rtc interfaces so the
// mesh and recording layers can be exercised without a network or a real
// WebRTC stack.
package rtctest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/calebmer/decode-universe-sub001/internal/rtc"
)

// ErrChannelClosed is returned by Send on a closed fake channel.
var ErrChannelClosed = errors.New("data channel closed")

// FakeEngine hands out FakeConns and remembers every one it created.
type FakeEngine struct {
	mu    sync.Mutex
	conns []*FakeConn
	onNew func(*FakeConn)
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

func (e *FakeEngine) NewConn() (rtc.Conn, error) {
	e.mu.Lock()
	conn := NewFakeConn()
	e.conns = append(e.conns, conn)
	fn := e.onNew
	e.mu.Unlock()
	if fn != nil {
		fn(conn)
	}
	return conn, nil
}

// OnNewConn registers a hook that sees every connection before the caller
// of NewConn does, so tests can arm per-connection behavior up front.
func (e *FakeEngine) OnNewConn(fn func(*FakeConn)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNew = fn
}

// Conns returns every connection created so far, in creation order.
func (e *FakeEngine) Conns() []*FakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*FakeConn, len(e.conns))
	copy(out, e.conns)
	return out
}

// FakeConn records every negotiation call and lets tests drive the remote
// side by firing the registered callbacks.
type FakeConn struct {
	mu sync.Mutex

	offerCount  int
	answerCount int
	locals      []rtc.SessionDescription
	remotes     []rtc.SessionDescription
	candidates  []rtc.ICECandidate
	closed      bool

	onCandidate   func(rtc.ICECandidate)
	onDataChannel func(rtc.DataChannel)
	onState       func(rtc.ConnState)
	onCreate      func(label string, remote *FakeDataChannel)
}

func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

func (c *FakeConn) CreateOffer() (rtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offerCount++
	return rtc.SessionDescription{Type: "offer", SDP: fmt.Sprintf("v=0 offer %d", c.offerCount)}, nil
}

func (c *FakeConn) CreateAnswer() (rtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerCount++
	return rtc.SessionDescription{Type: "answer", SDP: fmt.Sprintf("v=0 answer %d", c.answerCount)}, nil
}

func (c *FakeConn) SetLocalDescription(sd rtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locals = append(c.locals, sd)
	return nil
}

func (c *FakeConn) SetRemoteDescription(sd rtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes = append(c.remotes, sd)
	return nil
}

func (c *FakeConn) AddICECandidate(candidate rtc.ICECandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.candidates {
		if existing == candidate {
			// The engine tolerates duplicates without growing its set.
			return nil
		}
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *FakeConn) CreateDataChannel(label string) (rtc.DataChannel, error) {
	local, remote := NewChannelPair(label)
	c.mu.Lock()
	closed := c.closed
	fn := c.onCreate
	c.mu.Unlock()
	if closed {
		return nil, ErrChannelClosed
	}
	if fn != nil {
		fn(label, remote)
	}
	return local, nil
}

// OnCreateDataChannel registers a test hook that receives the remote end of
// every channel created locally on this connection, so tests can play the
// other side.
func (c *FakeConn) OnCreateDataChannel(fn func(label string, remote *FakeDataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCreate = fn
}

func (c *FakeConn) OnICECandidate(fn func(rtc.ICECandidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *FakeConn) OnDataChannel(fn func(rtc.DataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataChannel = fn
}

func (c *FakeConn) OnStateChange(fn func(rtc.ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// OfferCount returns how many offers were created on this connection.
func (c *FakeConn) OfferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerCount
}

// RemoteDescriptions returns every remote description set so far.
func (c *FakeConn) RemoteDescriptions() []rtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rtc.SessionDescription, len(c.remotes))
	copy(out, c.remotes)
	return out
}

// LocalDescriptions returns every local description set so far.
func (c *FakeConn) LocalDescriptions() []rtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rtc.SessionDescription, len(c.locals))
	copy(out, c.locals)
	return out
}

// Candidates returns the deduplicated remote candidate set.
func (c *FakeConn) Candidates() []rtc.ICECandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rtc.ICECandidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// EmitCandidate simulates the engine gathering a local candidate.
func (c *FakeConn) EmitCandidate(candidate rtc.ICECandidate) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn != nil {
		fn(candidate)
	}
}

// EmitState simulates a connection status transition.
func (c *FakeConn) EmitState(state rtc.ConnState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// AcceptDataChannel simulates the remote side opening a channel toward us.
func (c *FakeConn) AcceptDataChannel(dc rtc.DataChannel) {
	c.mu.Lock()
	fn := c.onDataChannel
	c.mu.Unlock()
	if fn != nil {
		fn(dc)
	}
}

// FakeDataChannel is one end of an in-memory channel pair. Messages sent
// before the other end registers OnMessage are queued and replayed.
type FakeDataChannel struct {
	mu    sync.Mutex
	label string
	peer  *FakeDataChannel

	onOpen    func()
	onMessage func(rtc.Message)
	onClose   func()
	onError   func(error)

	open   bool
	closed bool
	queue  []rtc.Message
}

// NewChannelPair creates two connected channel ends sharing a label. The
// pair starts unopened; call Open to fire both OnOpen callbacks.
func NewChannelPair(label string) (*FakeDataChannel, *FakeDataChannel) {
	a := &FakeDataChannel{label: label}
	b := &FakeDataChannel{label: label}
	a.peer, b.peer = b, a
	return a, b
}

// Open marks both ends open and fires their OnOpen callbacks.
func (d *FakeDataChannel) Open() {
	for _, end := range []*FakeDataChannel{d, d.peer} {
		end.mu.Lock()
		end.open = true
		fn := end.onOpen
		end.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (d *FakeDataChannel) Label() string { return d.label }

func (d *FakeDataChannel) OnOpen(fn func()) {
	d.mu.Lock()
	d.onOpen = fn
	alreadyOpen := d.open
	d.mu.Unlock()
	if alreadyOpen && fn != nil {
		fn()
	}
}

func (d *FakeDataChannel) OnMessage(fn func(rtc.Message)) {
	d.mu.Lock()
	d.onMessage = fn
	queued := d.queue
	d.queue = nil
	d.mu.Unlock()
	for _, msg := range queued {
		fn(msg)
	}
}

func (d *FakeDataChannel) OnClose(fn func()) {
	d.mu.Lock()
	d.onClose = fn
	alreadyClosed := d.closed
	d.mu.Unlock()
	if alreadyClosed && fn != nil {
		fn()
	}
}

func (d *FakeDataChannel) OnError(fn func(error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

func (d *FakeDataChannel) SendText(s string) error {
	return d.send(rtc.Message{Data: []byte(s), IsString: true})
}

func (d *FakeDataChannel) Send(b []byte) error {
	data := make([]byte, len(b))
	copy(data, b)
	return d.send(rtc.Message{Data: data})
}

func (d *FakeDataChannel) send(msg rtc.Message) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	d.peer.deliver(msg)
	return nil
}

func (d *FakeDataChannel) deliver(msg rtc.Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	fn := d.onMessage
	if fn == nil {
		d.queue = append(d.queue, msg)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn(msg)
}

// Close closes both ends and fires their OnClose callbacks once.
func (d *FakeDataChannel) Close() error {
	for _, end := range []*FakeDataChannel{d, d.peer} {
		end.mu.Lock()
		if end.closed {
			end.mu.Unlock()
			continue
		}
		end.closed = true
		fn := end.onClose
		end.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return nil
}

// Closed reports whether this end has been closed.
func (d *FakeDataChannel) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
