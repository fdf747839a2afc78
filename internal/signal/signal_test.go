package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalValidate(t *testing.T) {
	assert.NoError(t, Offer("v=0").Validate())
	assert.NoError(t, Answer("v=0").Validate())
	assert.NoError(t, NewCandidate(0, "candidate:1").Validate())
	assert.Error(t, Signal{Type: "renegotiate"}.Validate())
	assert.Error(t, Signal{}.Validate())
}

func TestMessageEnvelopeRoundTrip(t *testing.T) {
	msg, err := NewMessage(MessageTypeSignal, SignalPayload{
		To:     "b",
		Signal: Offer("v=0\r\n"),
	})
	require.NoError(t, err)

	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, MessageTypeSignal, decoded.Type)

	var payload SignalPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "b", payload.To)
	assert.Equal(t, TypeOffer, payload.Signal.Type)
	assert.Equal(t, "v=0\r\n", payload.Signal.SDP)
}

func TestCandidateWireShape(t *testing.T) {
	b, err := json.Marshal(NewCandidate(2, "candidate:1 1 udp"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "candidate", raw["type"])
	assert.Equal(t, "candidate:1 1 udp", raw["candidate"])
	assert.Equal(t, float64(2), raw["sdpMLineIndex"])
	assert.NotContains(t, raw, "sdp")
}
