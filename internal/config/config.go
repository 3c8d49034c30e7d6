package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jfmyers9/spotctl/internal/controller"
)

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string
	OutputWidth  int
	Marquee      MarqueeConfig

	Player   PlayerConfig
	API      APIConfig
	Startup  StartupConfig
	Shortcut ShortcutConfig
	IPC      IPCConfig
	History  HistoryConfig

	// "api" or "shortcut"
	VolumeControl string

	// Stop the player when the daemon exits
	ClosePlayerOnExit bool
}

// MarqueeConfig scrolls now output that is wider than OutputWidth
type MarqueeConfig struct {
	Enabled   bool
	Speed     int // Columns per second
	Separator string
}

// PlayerConfig locates and launches the player
type PlayerConfig struct {
	Executable  string // Empty disables launching
	ProcessName string
	WindowClass string
}

// APIConfig points at the player's local status service
type APIConfig struct {
	URL    string
	Origin string
}

// StartupConfig controls the daemon's start sequence
type StartupConfig struct {
	Timeout            time.Duration
	Minimize           bool
	ConnectionAttempts int
	Launch             bool // Start the player with the daemon
}

// ShortcutConfig tunes simulated keyboard shortcuts
type ShortcutConfig struct {
	KeyDelay time.Duration
}

// IPCConfig holds the daemon control socket address
type IPCConfig struct {
	Address string // Empty uses the platform default
}

// HistoryConfig controls the event journal
type HistoryConfig struct {
	Enabled       bool
	RetentionDays int
}

// Retention returns the journal retention period
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// Controller converts the player settings into a controller configuration
func (c *Config) Controller() (controller.Config, error) {
	mode, err := controller.ParseVolumeControl(c.VolumeControl)
	if err != nil {
		return controller.Config{}, err
	}

	cfg := controller.DefaultConfig()
	cfg.ExecutablePath = c.Player.Executable
	cfg.ProcessName = c.Player.ProcessName
	cfg.WindowClass = c.Player.WindowClass
	cfg.StartupTimeout = c.Startup.Timeout
	cfg.MinimizeOnStartup = c.Startup.Minimize
	cfg.ConnectionAttempts = c.Startup.ConnectionAttempts
	cfg.VolumeControl = mode
	cfg.KeyDelay = c.Shortcut.KeyDelay
	return cfg, nil
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := newViper()

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

// Watch loads the configuration and calls onChange with the new value each
// time the config file is written. Invalid edits are reported to onError
// and otherwise ignored.
func Watch(onChange func(*Config), onError func(error)) (*Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// WatchConfig needs a file to watch
		v.SetConfigFile(filepath.Join(getConfigDir(), "config.yaml"))
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("config %s: %w", e.Name, err))
			}
			return
		}
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("SPOTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	d := controller.DefaultConfig()

	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee.enabled", false)
	v.SetDefault("marquee.speed", 2)
	v.SetDefault("marquee.separator", " • ")

	v.SetDefault("player.executable", defaultExecutable())
	v.SetDefault("player.process_name", "Spotify")
	v.SetDefault("player.window_class", "SpotifyMainWindow")
	v.SetDefault("api.url", "http://127.0.0.1:4381")
	v.SetDefault("api.origin", "https://open.spotify.com")

	v.SetDefault("startup.timeout", d.StartupTimeout.Milliseconds())
	v.SetDefault("startup.minimize", false)
	v.SetDefault("startup.connection_attempts", d.ConnectionAttempts)
	v.SetDefault("startup.launch", true)
	v.SetDefault("shortcut.key_delay", d.KeyDelay.Milliseconds())

	v.SetDefault("volume_control", string(controller.VolumeAPI))
	v.SetDefault("ipc.address", "")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention_days", 30)
	v.SetDefault("close_player_on_exit", false)
}

// decode maps viper values onto Config. Durations are stored as
// milliseconds in the file.
func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		OutputFormat: v.GetString("output_format"),
		OutputWidth:  v.GetInt("output_width"),
		Marquee: MarqueeConfig{
			Enabled:   v.GetBool("marquee.enabled"),
			Speed:     v.GetInt("marquee.speed"),
			Separator: v.GetString("marquee.separator"),
		},
		Player: PlayerConfig{
			Executable:  v.GetString("player.executable"),
			ProcessName: v.GetString("player.process_name"),
			WindowClass: v.GetString("player.window_class"),
		},
		API: APIConfig{
			URL:    v.GetString("api.url"),
			Origin: v.GetString("api.origin"),
		},
		Startup: StartupConfig{
			Timeout:            time.Duration(v.GetInt64("startup.timeout")) * time.Millisecond,
			Minimize:           v.GetBool("startup.minimize"),
			ConnectionAttempts: v.GetInt("startup.connection_attempts"),
			Launch:             v.GetBool("startup.launch"),
		},
		Shortcut: ShortcutConfig{
			KeyDelay: time.Duration(v.GetInt64("shortcut.key_delay")) * time.Millisecond,
		},
		IPC: IPCConfig{
			Address: v.GetString("ipc.address"),
		},
		History: HistoryConfig{
			Enabled:       v.GetBool("history.enabled"),
			RetentionDays: v.GetInt("history.retention_days"),
		},
		VolumeControl:     v.GetString("volume_control"),
		ClosePlayerOnExit: v.GetBool("close_player_on_exit"),
	}

	if _, err := controller.ParseVolumeControl(cfg.VolumeControl); err != nil {
		return nil, err
	}
	if cfg.Startup.Timeout < 0 {
		return nil, fmt.Errorf("startup.timeout must not be negative")
	}
	if cfg.Startup.ConnectionAttempts < 0 {
		return nil, fmt.Errorf("startup.connection_attempts must not be negative")
	}

	return cfg, nil
}

// defaultExecutable returns the usual per-user install location, or empty
// when it cannot be determined
func defaultExecutable() string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		return ""
	}
	return filepath.Join(appData, "Spotify", "Spotify.exe")
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "spotctl")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// GetDataDir returns the directory for the daemon's state file and journal
func GetDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "spotctl"), nil
}

// YAML renders the configuration in config file layout
func (c *Config) YAML() ([]byte, error) {
	v := viper.New()
	c.set(v)
	return yaml.Marshal(v.AllSettings())
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	// Set config file path
	configFile := filepath.Join(getConfigDir(), "config.yaml")

	c.set(v)

	// Write to file
	return v.WriteConfigAs(configFile)
}

func (c *Config) set(v *viper.Viper) {
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee.enabled", c.Marquee.Enabled)
	v.Set("marquee.speed", c.Marquee.Speed)
	v.Set("marquee.separator", c.Marquee.Separator)
	v.Set("player.executable", c.Player.Executable)
	v.Set("player.process_name", c.Player.ProcessName)
	v.Set("player.window_class", c.Player.WindowClass)
	v.Set("api.url", c.API.URL)
	v.Set("api.origin", c.API.Origin)
	v.Set("startup.timeout", c.Startup.Timeout.Milliseconds())
	v.Set("startup.minimize", c.Startup.Minimize)
	v.Set("startup.connection_attempts", c.Startup.ConnectionAttempts)
	v.Set("startup.launch", c.Startup.Launch)
	v.Set("shortcut.key_delay", c.Shortcut.KeyDelay.Milliseconds())
	v.Set("volume_control", c.VolumeControl)
	v.Set("ipc.address", c.IPC.Address)
	v.Set("history.enabled", c.History.Enabled)
	v.Set("history.retention_days", c.History.RetentionDays)
	v.Set("close_player_on_exit", c.ClosePlayerOnExit)
}
