package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultSTUN, cfg.STUNServer)
	assert.Empty(t, cfg.TURNServer)
	assert.NotEmpty(t, cfg.RecordingsDir)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("DECODE_SERVER_URL", "ws://env:8080/ws")
	t.Setenv("DECODE_STUN_SERVER", "stun:env:3478")
	t.Setenv("DECODE_RECORDINGS_DIR", "/tmp/env-recordings")

	// Flags beat the environment.
	cfg, err := Load(Options{ServerURL: "ws://flag:8080/ws"})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag:8080/ws", cfg.ServerURL)

	// The environment beats defaults.
	assert.Equal(t, "stun:env:3478", cfg.STUNServer)
	assert.Equal(t, "/tmp/env-recordings", cfg.RecordingsDir)
}

func TestTURNServers(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Nil(t, cfg.GetTURNServers(), "no TURN URLs without a configured server")

	cfg, err = Load(Options{TURNServer: "turn:relay.example.com", TURNUser: "u", TURNPass: "p"})
	require.NoError(t, err)

	servers := cfg.GetTURNServers()
	require.Len(t, servers, 2)
	assert.Equal(t, "turn:relay.example.com:3478?transport=udp", servers[0])
	assert.Equal(t, "turn:relay.example.com:3478?transport=tcp", servers[1])

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
}
