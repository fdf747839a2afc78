package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/calebmer/decode-universe-sub001/internal/config"
	"github.com/calebmer/decode-universe-sub001/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var flagRecordingsDir string

var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"ls"},
	Short:   "List recordings on this machine",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRecordings()
	},
}

func listRecordings() error {
	cfg, err := loadConfig(config.Options{RecordingsDir: flagRecordingsDir})
	if err != nil {
		return err
	}

	dir, err := storage.OpenDirectory(cfg.RecordingsDir)
	if err != nil {
		return fmt.Errorf("open recordings: %w", err)
	}
	defer dir.Close()

	recordings := dir.AllRecordings()
	if len(recordings) == 0 {
		fmt.Printf("No recordings in %s\n", cfg.RecordingsDir)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Started", "Tracks", "Duration"})
	for _, rec := range recordings {
		t.AppendRow(table.Row{
			rec.ID(),
			rec.StartedAt().Local().Format(time.DateTime),
			len(rec.Tracks()),
			longestTrack(rec).Round(time.Second),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

// longestTrack reports the recording's length: tracks may start at different
// offsets, so the longest raw file wins.
func longestTrack(rec *storage.RecordingStorage) time.Duration {
	var longest time.Duration
	for id := range rec.Tracks() {
		d, err := rec.TrackDuration(id)
		if err != nil {
			continue
		}
		if d > longest {
			longest = d
		}
	}
	return longest
}

func init() {
	rootCmd.AddCommand(recordingsCmd)

	recordingsCmd.Flags().StringVar(&flagRecordingsDir, "recordings-dir", "", "Directory recordings are read from")
}
