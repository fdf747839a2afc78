package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default configuration values
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultTURN      = "" // Optional, empty by default
	DefaultTURNUser  = ""
	DefaultTURNPass  = ""
)

// Config holds application configuration
type Config struct {
	// ServerURL is the signaling relay websocket endpoint
	ServerURL string

	// RecordingsDir is the root directory recordings are stored under
	RecordingsDir string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL     string
	RecordingsDir string
	STUNServer    string
	TURNServer    string
	TURNUser      string
	TURNPass      string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("DECODE_SERVER_URL"), DefaultServerURL)
	stunServer := firstNonEmpty(opts.STUNServer, os.Getenv("DECODE_STUN_SERVER"), DefaultSTUN)
	turnServer := firstNonEmpty(opts.TURNServer, os.Getenv("DECODE_TURN_SERVER"), DefaultTURN)
	turnUser := firstNonEmpty(opts.TURNUser, os.Getenv("DECODE_TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstNonEmpty(opts.TURNPass, os.Getenv("DECODE_TURN_PASSWORD"), DefaultTURNPass)

	recordingsDir := firstNonEmpty(opts.RecordingsDir, os.Getenv("DECODE_RECORDINGS_DIR"))
	if recordingsDir == "" {
		recordingsDir = defaultRecordingsDir()
	}

	return &Config{
		ServerURL:     serverURL,
		RecordingsDir: recordingsDir,
		STUNServer:    stunServer,
		TURNServer:    turnServer,
		TURNUser:      turnUser,
		TURNPass:      turnPass,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func defaultRecordingsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "recordings")
	}
	return "recordings"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
