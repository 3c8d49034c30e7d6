package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/history"
	"github.com/jfmyers9/spotctl/internal/player"
)

var (
	historyLimit   int
	historySince   time.Duration
	historyKinds   []string
	historyAll     bool
	historyPlays   bool
	historyDataDir string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently played tracks",
	Long: `List playback history recorded by the daemon, newest first.

By default only track changes are shown. Use --plays for tracks that were
heard long enough to count as played (half the track or 4 minutes), --all
for every recorded event (play/pause, volume, connect and exit) or --kind
to pick kinds.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only entries newer than this (e.g. 24h)")
	historyCmd.Flags().StringSliceVar(&historyKinds, "kind", nil, "Event kinds to show (comma separated)")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Show all event kinds")
	historyCmd.Flags().BoolVar(&historyPlays, "plays", false, "Show only tracks that counted as played")
	historyCmd.Flags().StringVar(&historyDataDir, "data-dir", "", "Data directory (default: ~/.local/share/spotctl)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dataDir := historyDataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.GetDataDir()
		if err != nil {
			return err
		}
	}

	dbPath := filepath.Join(dataDir, "history.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No history recorded yet")
		return nil
	}

	j, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer j.Close()

	filter := history.Filter{Limit: historyLimit}
	switch {
	case len(historyKinds) > 0:
		filter.Kinds = historyKinds
	case historyPlays:
		filter.Kinds = []string{history.KindPlayed}
	case !historyAll:
		filter.Kinds = []string{player.SongChanged{}.Kind()}
	}
	if historySince > 0 {
		filter.Since = time.Now().Add(-historySince)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := j.Recent(ctx, filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No matching history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			describeEntry(e))
	}
	return w.Flush()
}

func describeEntry(e history.Entry) string {
	track := e.Track
	if e.Artist != "" {
		track = e.Artist + " - " + e.Track
	}

	switch e.Kind {
	case player.PlayStateChanged{}.Kind():
		if e.Playing {
			return "playing " + track
		}
		return "paused " + track
	case player.VolumeChanged{}.Kind():
		return fmt.Sprintf("volume %.0f%%", e.Volume*100)
	case player.Exited{}.Kind():
		return "player exited"
	case history.KindPlayed:
		return fmt.Sprintf("%s (%s)", strings.TrimSpace(track), e.Position.Truncate(time.Second))
	}
	return strings.TrimSpace(track)
}
