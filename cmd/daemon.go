package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/controller"
	"github.com/jfmyers9/spotctl/internal/daemon"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonDataDir  string
	daemonNoLaunch bool
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the control daemon",
	Long: `Run the control daemon that owns the Spotify client.

The daemon will:
- Attach to a running Spotify, or launch it and wait for it to become idle
- Connect to Spotify's local status service and follow playback events
- Accept playback commands on a control socket (named pipe on Windows)
- Keep a now-playing state file for status bars and a playback history
- Apply volume_control changes from the config file without a restart
- Handle graceful shutdown on Ctrl+C/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful when started at logon).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	// Command-line flags
	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for state and history (default: ~/.local/share/spotctl)")
	daemonCmd.Flags().BoolVar(&daemonNoLaunch, "no-launch", false, "Do not start the player with the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Set up logging
	logger := setupLogger(daemonLogFile, daemonLogLevel)

	// Set once the controller exists; config changes before that are moot
	var live atomic.Pointer[controller.Controller]

	// Load configuration, following volume_control edits while running
	cfg, err := config.Watch(func(next *config.Config) {
		ctrl := live.Load()
		if ctrl == nil {
			return
		}
		mode, err := controller.ParseVolumeControl(next.VolumeControl)
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring config change")
			return
		}
		ctrl.SetVolumeControl(mode)
	}, func(err error) {
		logger.Warn().Err(err).Msg("Ignoring invalid config change")
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info().
		Str("version", version).
		Msg("Starting spotctl daemon")

	// Determine data directory
	dataDir := daemonDataDir
	if dataDir == "" {
		dataDir, err = config.GetDataDir()
		if err != nil {
			return err
		}
	}

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger.Info().Str("data_dir", dataDir).Msg("Using data directory")

	ctrl, err := newController(cfg, logger)
	if err != nil {
		return err
	}
	live.Store(ctrl)

	// Create daemon config
	daemonCfg := daemon.Config{
		StateFile:   filepath.Join(dataDir, "state.json"),
		IPCAddress:  controlAddress(cfg),
		StartPlayer: cfg.Startup.Launch && !daemonNoLaunch,
		CloseOnExit: cfg.ClosePlayerOnExit,
	}
	if cfg.History.Enabled {
		daemonCfg.HistoryDB = filepath.Join(dataDir, "history.db")
		daemonCfg.HistoryRetention = cfg.History.Retention()
	}

	// Create daemon
	d, err := daemon.New(daemonCfg, ctrl, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	runErr := d.Run()

	// Graceful shutdown
	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		if runErr == nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("daemon error: %w", runErr)
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	// Parse log level
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	// Create logger
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
