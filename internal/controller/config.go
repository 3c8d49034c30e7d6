package controller

import (
	"fmt"
	"strings"
	"time"
)

// VolumeControl selects how volume commands reach the player
type VolumeControl string

const (
	// VolumeAPI changes volume through the status API
	VolumeAPI VolumeControl = "api"
	// VolumeShortcut replays the player's own volume accelerators
	VolumeShortcut VolumeControl = "shortcut"
)

// ParseVolumeControl parses a volume control mode
func ParseVolumeControl(s string) (VolumeControl, error) {
	switch VolumeControl(strings.ToLower(strings.TrimSpace(s))) {
	case VolumeAPI, "":
		return VolumeAPI, nil
	case VolumeShortcut:
		return VolumeShortcut, nil
	default:
		return "", fmt.Errorf("invalid volume control %q (want %q or %q)", s, VolumeAPI, VolumeShortcut)
	}
}

// Config holds controller settings
type Config struct {
	ExecutablePath     string        // Player executable or shell: app id
	ProcessName        string        // Executable name used for lookup and kill
	WindowClass        string        // Main window class name
	StartupTimeout     time.Duration // Budget for process discovery and idle wait
	MinimizeOnStartup  bool          // Minimize the player after launching it
	ConnectionAttempts int           // Status API handshake attempts
	RetryDelay         time.Duration // Pause between handshake attempts
	VolumeControl      VolumeControl
	KeyDelay           time.Duration // Pause inside shortcut sequences

	ProcessPollInterval time.Duration
	WindowWait          time.Duration // Budget for the window to appear before minimizing
	WindowPollInterval  time.Duration
	MinimizeDelay       time.Duration // Settle time before minimizing after launch
	CloseGrace          time.Duration // Wait between graceful close and kill
}

// DefaultConfig returns the default controller settings
func DefaultConfig() Config {
	return Config{
		StartupTimeout:      20 * time.Second,
		ConnectionAttempts:  5,
		RetryDelay:          time.Second,
		VolumeControl:       VolumeAPI,
		KeyDelay:            30 * time.Millisecond,
		ProcessPollInterval: 250 * time.Millisecond,
		WindowWait:          2 * time.Second,
		WindowPollInterval:  100 * time.Millisecond,
		MinimizeDelay:       time.Second,
		CloseGrace:          time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.ConnectionAttempts <= 0 {
		c.ConnectionAttempts = d.ConnectionAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.VolumeControl == "" {
		c.VolumeControl = d.VolumeControl
	}
	if c.ProcessPollInterval <= 0 {
		c.ProcessPollInterval = d.ProcessPollInterval
	}
	if c.WindowWait <= 0 {
		c.WindowWait = d.WindowWait
	}
	if c.WindowPollInterval <= 0 {
		c.WindowPollInterval = d.WindowPollInterval
	}
	if c.MinimizeDelay <= 0 {
		c.MinimizeDelay = d.MinimizeDelay
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = d.CloseGrace
	}
	return c
}
