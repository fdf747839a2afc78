package rtc

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/calebmer/decode-universe-sub001/internal/config"
)

// PionEngine is the production Engine backed by pion/webrtc.
type PionEngine struct {
	configuration pion.Configuration
}

// NewPionEngine builds an engine whose ICE server list comes from the
// application config.
func NewPionEngine(cfg *config.Config) *PionEngine {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return &PionEngine{
		configuration: pion.Configuration{ICEServers: iceServers},
	}
}

// NewConn creates a new peer connection.
func (e *PionEngine) NewConn() (Conn, error) {
	pc, err := pion.NewPeerConnection(e.configuration)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &pionConn{pc: pc}, nil
}

type pionConn struct {
	pc *pion.PeerConnection
}

func (c *pionConn) CreateOffer() (SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *pionConn) CreateAnswer() (SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *pionConn) SetLocalDescription(sd SessionDescription) error {
	return c.pc.SetLocalDescription(pion.SessionDescription{
		Type: pion.NewSDPType(sd.Type),
		SDP:  sd.SDP,
	})
}

func (c *pionConn) SetRemoteDescription(sd SessionDescription) error {
	return c.pc.SetRemoteDescription(pion.SessionDescription{
		Type: pion.NewSDPType(sd.Type),
		SDP:  sd.SDP,
	})
}

func (c *pionConn) AddICECandidate(candidate ICECandidate) error {
	mLineIndex := candidate.SDPMLineIndex
	return c.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMLineIndex: &mLineIndex,
	})
}

func (c *pionConn) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return &pionDataChannel{dc: dc}, nil
}

func (c *pionConn) OnICECandidate(fn func(ICECandidate)) {
	c.pc.OnICECandidate(func(candidate *pion.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		var mLineIndex uint16
		if init.SDPMLineIndex != nil {
			mLineIndex = *init.SDPMLineIndex
		}
		fn(ICECandidate{SDPMLineIndex: mLineIndex, Candidate: init.Candidate})
	})
}

func (c *pionConn) OnDataChannel(fn func(DataChannel)) {
	c.pc.OnDataChannel(func(dc *pion.DataChannel) {
		fn(&pionDataChannel{dc: dc})
	})
}

func (c *pionConn) OnStateChange(fn func(ConnState)) {
	c.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		fn(mapICEState(state))
	})
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

func mapICEState(state pion.ICEConnectionState) ConnState {
	switch state {
	case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
		return StateConnected
	case pion.ICEConnectionStateDisconnected:
		return StateDisconnected
	case pion.ICEConnectionStateFailed:
		return StateFailed
	case pion.ICEConnectionStateClosed:
		return StateClosed
	default:
		return StateConnecting
	}
}

type pionDataChannel struct {
	dc *pion.DataChannel
}

func (d *pionDataChannel) Label() string { return d.dc.Label() }

func (d *pionDataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }

func (d *pionDataChannel) OnMessage(fn func(Message)) {
	d.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(Message{Data: msg.Data, IsString: msg.IsString})
	})
}

func (d *pionDataChannel) OnClose(fn func()) { d.dc.OnClose(fn) }

func (d *pionDataChannel) OnError(fn func(error)) { d.dc.OnError(fn) }

func (d *pionDataChannel) SendText(s string) error { return d.dc.SendText(s) }

func (d *pionDataChannel) Send(b []byte) error { return d.dc.Send(b) }

func (d *pionDataChannel) Close() error { return d.dc.Close() }
