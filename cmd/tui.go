package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/tui"
)

var tuiLogFile string

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal UI for now playing",
	Long: `Display a terminal-based user interface showing the currently playing track
with real-time updates pushed by Spotify's status service.

The TUI attaches to a running Spotify (launching it if configured) and
follows playback events directly, independent of the daemon.

The TUI includes:
- Now playing display with track, artist, and album
- Progress bar showing playback position
- Session panel with volume and tracks played
- Recently played tracks

Keys: space play/pause, n next, p previous, f/r seek, +/- volume,
m mute, s show/minimize player, q quit.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Log file path (default: discard)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Log lines would tear the terminal UI
	logger := zerolog.New(io.Discard)
	if tuiLogFile != "" {
		logger = setupLogger(tuiLogFile, "debug")
	}

	ctrl, err := newController(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout(cfg))
	err = ctrl.Start(ctx)
	cancel()
	if err != nil {
		return startFailed(err)
	}

	tuiCfg := tui.DefaultConfig()
	tuiCfg.VolumeControl = string(ctrl.VolumeControl())

	app := tui.New(ctrl, tuiCfg)
	runErr := app.Run(context.Background())

	if cfg.ClosePlayerOnExit {
		if err := ctrl.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close player")
		}
	}
	return runErr
}
