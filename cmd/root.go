/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// socketAddress overrides the configured control socket
var socketAddress string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spotctl",
	Short: "Control the Spotify desktop client on Windows",
	Long: `spotctl controls the Spotify desktop client on Windows.

It runs as a background daemon that launches or attaches to Spotify,
follows playback through Spotify's local status service, and accepts
playback commands from the CLI, hotkey tools, and a terminal UI.

It also provides a CLI command to query the currently playing track,
useful for displaying in status bars.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketAddress, "socket", "", "Daemon control socket (default: from config)")
}
