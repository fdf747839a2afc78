// Package mesh maintains one direct connection per room member: it drives
// negotiation through the signaling client, tracks per-peer connection
// status, replicates the local participant's state to every peer, and fans
// out the local audio reference.
package mesh

import (
	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/calebmer/decode-universe-sub001/internal/rtc"
)

// PeerState is the participant state replicated from its owner to every
// other member and mirrored back as each peer's remote state.
type PeerState struct {
	Name    string `json:"name"`
	IsMuted bool   `json:"isMuted"`
}

// Status is the coarse per-peer connection status.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// statusOf maps an engine connection state onto the three observable
// statuses. Terminal states are handled separately (the peer is removed).
func statusOf(state rtc.ConnState) Status {
	switch state {
	case rtc.StateConnected:
		return StatusConnected
	case rtc.StateDisconnected, rtc.StateFailed, rtc.StateClosed:
		return StatusDisconnected
	default:
		return StatusConnecting
	}
}

// AudioSource is the live audio a participant shares with the mesh. A nil
// AudioSource means no audio is being shared.
type AudioSource = capture.Audio
