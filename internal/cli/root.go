// Package cli defines the decode command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/calebmer/decode-universe-sub001/internal/config"
	"github.com/calebmer/decode-universe-sub001/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "decode",
	Short:   "Peer-to-peer podcast studio with per-guest lossless recording",
	Long:    `Decode connects podcast participants directly over WebRTC and records every guest locally in full quality. The host collects one raw audio track per participant instead of a single lossy mix, so each voice can be edited and mastered independently.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
