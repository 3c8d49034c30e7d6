package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/ipc"
	"github.com/jfmyers9/spotctl/internal/player"
)

// playbackCommands are thin wrappers that dispatch one named command to the daemon
var playbackCommands = []struct {
	use   string
	short string
	cmd   player.Command
}{
	{"play-pause", "Toggle play/pause", player.PlayPause},
	{"next", "Skip to the next track", player.NextTrack},
	{"prev", "Go to the previous track", player.PreviousTrack},
	{"stop-playback", "Stop playback", player.Stop},
	{"ff", "Seek forward in the current track", player.FastForward},
	{"rewind", "Seek backward in the current track", player.Rewind},
	{"mute", "Toggle mute", player.Mute},
	{"show", "Show the player window, or minimize it when already visible", player.ShowPlayer},
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume up|down",
	Short: "Step the player volume",
	Long: `Step the player volume up or down.

Depending on the volume_control setting the step goes through Spotify's
status service ("api") or a simulated Ctrl+Up/Down shortcut ("shortcut").`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(args[0]) {
		case "up", "+":
			return dispatch(player.VolumeUp)
		case "down", "-":
			return dispatch(player.VolumeDown)
		}
		return fmt.Errorf("invalid volume argument: %s (must be 'up' or 'down')", args[0])
	},
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <command|code>",
	Short: "Send any command to the player",
	Long: `Send a named command or a raw native command code to the player.

Named commands: ` + namedCommands() + `.

Numeric codes (decimal or 0x-prefixed) are forwarded to the player window
as-is, e.g. "spotctl send 0x000e0000" toggles playback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := player.ParseCommand(args[0])
		if err != nil {
			return fmt.Errorf("%w (named commands: %s)", err, namedCommands())
		}
		return dispatch(c)
	},
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch or attach to the player from the daemon",
	Long: `Ask the running daemon to launch Spotify (or attach to a running
instance) and connect to its status service. Useful after a failed start
or when the daemon runs with --no-launch.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callDaemon(ipc.Request{Op: ipc.OpStart})
		if err != nil {
			return fmt.Errorf("failed to start player: %w", err)
		}
		if resp.Status != nil {
			fmt.Printf("Player %s\n", resp.Status.State)
		}
		return nil
	},
}

// closeCmd represents the close command
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the player",
	Long:  `Ask the running daemon to close Spotify: a close request, a short grace period, then a forced kill.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := callDaemon(ipc.Request{Op: ipc.OpStop}); err != nil {
			return fmt.Errorf("failed to close player: %w", err)
		}
		return nil
	},
}

func init() {
	for _, pc := range playbackCommands {
		c := pc.cmd
		rootCmd.AddCommand(&cobra.Command{
			Use:   pc.use,
			Short: pc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return dispatch(c)
			},
		})
	}

	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(closeCmd)
}

// dispatch sends cmd to the daemon
func dispatch(c player.Command) error {
	if _, err := callDaemon(ipc.Request{Op: ipc.OpDispatch, Command: commandArg(c)}); err != nil {
		return fmt.Errorf("failed to send %s: %w", c, err)
	}
	return nil
}

// namedCommands lists the names send accepts
func namedCommands() string {
	var names []string
	for _, c := range player.Commands() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

// commandArg renders c for the wire. Raw codes travel in hex so the daemon
// forwards them unchanged.
func commandArg(c player.Command) string {
	if !c.Named() {
		return fmt.Sprintf("0x%08x", uint32(c))
	}
	return c.String()
}
