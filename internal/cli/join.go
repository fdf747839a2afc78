package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/calebmer/decode-universe-sub001/internal/app"
	"github.com/calebmer/decode-universe-sub001/internal/config"
	"github.com/calebmer/decode-universe-sub001/internal/prefs"
	"github.com/spf13/cobra"
)

var (
	flagJoinServer     string
	flagJoinRecordings string
	flagJoinSTUN       string
	flagJoinTURN       string
	flagJoinTURNUser   string
	flagJoinTURNPass   string
	flagJoinName       string
	flagJoinDevice     string
	flagJoinRate       int
	flagJoinHost       bool
	flagJoinMute       bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a recording room",
	Long: `Join a room as a participant, or as the host with --host.

Examples:
  decode join my-show --name Caleb
  decode join my-show --host
  decode join my-show --mute --device 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func joinRoom(roomName string) error {
	cfg, err := loadConfig(config.Options{
		ServerURL:     flagJoinServer,
		RecordingsDir: flagJoinRecordings,
		STUNServer:    flagJoinSTUN,
		TURNServer:    flagJoinTURN,
		TURNUser:      flagJoinTURNUser,
		TURNPass:      flagJoinTURNPass,
	})
	if err != nil {
		return err
	}

	store, err := openPrefs()
	if err != nil {
		return err
	}

	studio, err := app.New(cfg, store, app.Options{
		RoomName:   roomName,
		Name:       flagJoinName,
		DeviceID:   flagJoinDevice,
		SampleRate: flagJoinRate,
		Host:       flagJoinHost,
		Mute:       flagJoinMute,
	})
	if err != nil {
		return err
	}
	defer studio.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := studio.Connect(ctx); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	local, _ := studio.Mesh.LocalState().Current()
	fmt.Printf("Joined %q as %s\n", roomName, local.Name)
	printHelp(flagJoinHost)

	return commandLoop(ctx, studio)
}

func printHelp(asHost bool) {
	fmt.Println("Commands: mute, unmute, peers, quit")
	if asHost {
		fmt.Println("Hosting:  press enter to start or stop recording")
	}
}

// commandLoop reads one command per line until quit or interrupt.
func commandLoop(ctx context.Context, studio *app.Studio) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(strings.ToLower(scanner.Text()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nLeaving room")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done, err := runCommand(ctx, studio, line); done || err != nil {
				return err
			}
		}
	}
}

func runCommand(ctx context.Context, studio *app.Studio, line string) (done bool, err error) {
	switch line {
	case "":
		toggleRecording(ctx, studio)
	case "mute":
		studio.Mesh.Mute()
		fmt.Println("Muted")
	case "unmute":
		studio.Mesh.Unmute()
		fmt.Println("Unmuted")
	case "peers":
		printPeers(studio)
	case "quit", "exit", "q":
		return true, nil
	default:
		fmt.Printf("Unknown command %q\n", line)
	}
	return false, nil
}

func toggleRecording(ctx context.Context, studio *app.Studio) {
	if studio.Orchestrator == nil {
		return
	}
	if studio.Orchestrator.Recording() {
		if err := studio.Orchestrator.StopRecording(); err != nil {
			fmt.Println("Stop recording:", err)
			return
		}
		fmt.Println("Recording stopped")
		return
	}
	if err := studio.Orchestrator.StartRecording(ctx); err != nil {
		fmt.Println("Start recording:", err)
		return
	}
	fmt.Println("Recording started")
}

func printPeers(studio *app.Studio) {
	peers := studio.Mesh.Peers()
	if len(peers) == 0 {
		fmt.Println("No peers connected")
		return
	}
	for _, p := range peers {
		state, _ := p.RemoteState().Current()
		name := state.Name
		if name == "" {
			name = p.Address
		}
		muted := ""
		if state.IsMuted {
			muted = " (muted)"
		}
		status, _ := p.Status().Current()
		fmt.Printf("  %s — %s%s\n", name, status, muted)
	}
}

func openPrefs() (prefs.Store, error) {
	path, err := prefs.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("locate preferences: %w", err)
	}
	store, err := prefs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagJoinServer, "server", "", "Signaling server URL")
	joinCmd.Flags().StringVar(&flagJoinRecordings, "recordings-dir", "", "Directory recordings are written to")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name shared with peers")
	joinCmd.Flags().StringVarP(&flagJoinDevice, "device", "d", "", "Audio input device")
	joinCmd.Flags().IntVar(&flagJoinRate, "rate", 0, "Capture sample rate in Hz")
	joinCmd.Flags().BoolVarP(&flagJoinHost, "host", "r", false, "Host the room and record every participant")
	joinCmd.Flags().BoolVarP(&flagJoinMute, "mute", "m", false, "Join muted")
}
