package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strings"

	"github.com/calebmer/decode-universe-sub001/internal/pubsub"
)

// Device is one enumerable audio input.
type Device struct {
	ID   string
	Name string
}

// FFmpegSource captures from an input device by running ffmpeg and reading
// raw little-endian float32 samples from its stdout.
type FFmpegSource struct {
	sampleRate int
	chunks     *pubsub.Feed[[]float32]
	cmd        *exec.Cmd
	stdout     io.ReadCloser
}

// CheckFFmpeg verifies ffmpeg is installed.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH")
	}
	return nil
}

// inputBackend returns the ffmpeg capture backend for this platform.
func inputBackend() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// NewFFmpegSource starts capturing from the named device ("" means the
// platform default). The returned source emits ChunkSamples-sized chunks
// until Close.
func NewFFmpegSource(deviceID string, sampleRate int) (*FFmpegSource, error) {
	if err := CheckFFmpeg(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if deviceID == "" {
		deviceID = defaultDevice()
	}

	cmd := exec.Command("ffmpeg",
		"-f", inputBackend(),
		"-i", deviceID,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "f32le",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &FFmpegSource{
		sampleRate: sampleRate,
		chunks:     pubsub.New[[]float32](),
		cmd:        cmd,
		stdout:     stdout,
	}
	go s.readLoop()
	return s, nil
}

func defaultDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":default"
	case "windows":
		return "audio=default"
	default:
		return "default"
	}
}

// readLoop reads full chunks off ffmpeg's stdout and publishes them.
func (s *FFmpegSource) readLoop() {
	defer s.chunks.Close()

	reader := bufio.NewReaderSize(s.stdout, ChunkSamples*BytesPerSample)
	buf := make([]byte, ChunkSamples*BytesPerSample)

	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Error("ffmpeg capture read failed", "error", err)
			}
			return
		}

		chunk := make([]float32, ChunkSamples)
		for i := range chunk {
			bits := binary.LittleEndian.Uint32(buf[i*BytesPerSample:])
			chunk[i] = math.Float32frombits(bits)
		}
		s.chunks.Publish(chunk)
	}
}

// SampleRate returns the capture rate.
func (s *FFmpegSource) SampleRate() int { return s.sampleRate }

// Chunks returns the live chunk feed. The feed completes when capture ends.
func (s *FFmpegSource) Chunks() *pubsub.Feed[[]float32] { return s.chunks }

// Close stops the capture process.
func (s *FFmpegSource) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	return nil
}

// Devices enumerates capture devices by parsing ffmpeg's device listing.
// ffmpeg prints the listing on stderr and exits non-zero, so the error from
// Run is ignored when output was produced.
func Devices() ([]Device, error) {
	if err := CheckFFmpeg(); err != nil {
		return nil, err
	}

	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = []string{"-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "windows":
		args = []string{"-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	default:
		args = []string{"-f", "pulse", "-sources", "default", "-i", "default"}
	}

	cmd := exec.Command("ffmpeg", args...)
	out, _ := cmd.CombinedOutput()
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no device listing")
	}
	return parseDeviceListing(string(out)), nil
}

// parseDeviceListing pulls "[index] name" entries out of ffmpeg's listing.
func parseDeviceListing(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		open := strings.LastIndex(line, "[")
		closing := strings.LastIndex(line, "]")
		if open < 0 || closing <= open+1 {
			continue
		}
		id := line[open+1 : closing]
		name := strings.TrimSpace(line[closing+1:])
		if name == "" || strings.ContainsAny(id, " :") {
			continue
		}
		devices = append(devices, Device{ID: id, Name: name})
	}
	return devices
}
