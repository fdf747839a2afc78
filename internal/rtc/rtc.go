// Package rtc is the boundary to the real-time-communication engine. The
// mesh and recording layers only ever see these interfaces; the production
// implementation wraps pion/webrtc and lives in pion.go.
package rtc

// ConnState is the coarse connection status of one peer connection, derived
// from the engine's ICE connection state.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the state permanently ends the connection.
func (s ConnState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string // "offer" or "answer"
	SDP  string
}

// ICECandidate is one transport candidate produced or consumed during
// negotiation.
type ICECandidate struct {
	SDPMLineIndex uint16
	Candidate     string
}

// Message is one data channel message.
type Message struct {
	Data     []byte
	IsString bool
}

// Conn is one direct connection to a remote peer.
type Conn interface {
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(SessionDescription) error
	SetRemoteDescription(SessionDescription) error
	AddICECandidate(ICECandidate) error

	// CreateDataChannel opens a new labeled channel to the remote side.
	CreateDataChannel(label string) (DataChannel, error)

	// OnICECandidate registers a callback for locally gathered candidates.
	OnICECandidate(func(ICECandidate))

	// OnDataChannel registers a callback for channels the remote side opens.
	OnDataChannel(func(DataChannel))

	// OnStateChange registers a callback for connection status transitions.
	OnStateChange(func(ConnState))

	Close() error
}

// DataChannel is one byte-stream sub-connection of a Conn.
type DataChannel interface {
	Label() string

	OnOpen(func())
	OnMessage(func(Message))
	OnClose(func())
	OnError(func(error))

	// SendText sends a string message.
	SendText(string) error

	// Send sends a binary message.
	Send([]byte) error

	Close() error
}

// Engine creates peer connections.
type Engine interface {
	NewConn() (Conn, error)
}
