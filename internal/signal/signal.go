// Package signal defines the wire types exchanged through the signaling
// relay: the client/server message envelope and the offer/answer/candidate
// union used to negotiate direct peer connections.
package signal

import (
	"encoding/json"
	"fmt"
)

// Signal type constants.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Signal is one negotiation message: an SDP offer, an SDP answer, or an ICE
// candidate. Exactly one shape is valid per Type.
type Signal struct {
	Type string `json:"type"`

	// SDP is set for offers and answers.
	SDP string `json:"sdp,omitempty"`

	// SDPMLineIndex and Candidate are set for candidates.
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
}

// Offer builds an offer signal from an SDP.
func Offer(sdp string) Signal {
	return Signal{Type: TypeOffer, SDP: sdp}
}

// Answer builds an answer signal from an SDP.
func Answer(sdp string) Signal {
	return Signal{Type: TypeAnswer, SDP: sdp}
}

// NewCandidate builds a candidate signal.
func NewCandidate(mLineIndex uint16, candidate string) Signal {
	return Signal{Type: TypeCandidate, SDPMLineIndex: mLineIndex, Candidate: candidate}
}

// Validate checks that the signal carries a known type.
func (s Signal) Validate() error {
	switch s.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return nil
	}
	return fmt.Errorf("unknown signal type %q", s.Type)
}

// Message type constants for the relay protocol.
const (
	MessageTypeJoin   = "join"
	MessageTypeJoined = "joined"
	MessageTypeSignal = "signal"
	MessageTypeError  = "error"
)

// Message is the envelope for all client/server relay traffic.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload asks the relay to add the sender to a room.
type JoinPayload struct {
	RoomName string `json:"roomName"`
}

// JoinedPayload is the relay's reply to a join: the sender's assigned
// address plus every other address currently in the room.
type JoinedPayload struct {
	Address        string   `json:"address"`
	OtherAddresses []string `json:"otherAddresses"`
}

// SignalPayload carries one Signal between two addresses. Outbound from a
// client, To names the recipient; relayed to the recipient, From names the
// sender.
type SignalPayload struct {
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	Signal Signal `json:"signal"`
}

// ErrorPayload reports a relay-level failure to the client.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage wraps a payload in an envelope of the given type.
func NewMessage(t string, payload any) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Payload: b}, nil
}

// DecodePayload decodes the envelope payload into the provided struct.
func (m *Message) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
