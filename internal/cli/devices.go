package cli

import (
	"fmt"

	"github.com/calebmer/decode-universe-sub001/internal/capture"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := capture.CheckFFmpeg(); err != nil {
			return err
		}
		devices, err := capture.Devices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			fmt.Println("No audio input devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Printf("  [%s] %s\n", d.ID, d.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
