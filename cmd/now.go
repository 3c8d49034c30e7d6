/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/daemon"
	"github.com/jfmyers9/spotctl/internal/ipc"
	"github.com/jfmyers9/spotctl/internal/player"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the currently playing track",
	Long: `Display the currently playing track.

The track comes from the running daemon, or from the state file it keeps
when the daemon cannot be reached.

The output format can be customized in ~/.config/spotctl/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .Length,
.Position, .Playing, .Volume

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or Spotify not running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flag to enable scrolling
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
	// Report paused tracks too
	nowCmd.Flags().Bool("paused", false, "Also print the track while paused")
}

// nowData is the template context for the now command
type nowData struct {
	Title    string
	Artist   string
	Album    string
	Length   time.Duration
	Position time.Duration
	Playing  bool
	Volume   int // Percent
}

func runNow(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Check for format flag override
	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	status, err := currentStatus(cfg)
	if err != nil {
		return err
	}

	showPaused, _ := cmd.Flags().GetBool("paused")
	if !status.Running || status.Track.IsZero() || (!status.Playing && !showPaused) {
		os.Exit(1)
	}

	// Format and print output
	output, err := formatTrack(status, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	// Apply width padding/marquee if requested
	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !cmd.Flags().Changed("marquee") {
		// Flag not set, use config default
		marquee = cfg.Marquee.Enabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.Marquee.Speed, cfg.Marquee.Separator, time.Now())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// currentStatus asks the daemon, falling back to its state file
func currentStatus(cfg *config.Config) (player.Status, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := ipc.Call(ctx, controlAddress(cfg), ipc.Request{Op: ipc.OpStatus})
	if err == nil && resp.Status != nil {
		return resp.Status.Player(), nil
	}

	dataDir, dirErr := config.GetDataDir()
	if dirErr != nil {
		return player.Status{}, dirErr
	}

	np, stateErr := daemon.ReadState(filepath.Join(dataDir, "state.json"))
	if stateErr != nil {
		if os.IsNotExist(stateErr) {
			return player.Status{}, fmt.Errorf("daemon is not running: %w", err)
		}
		return player.Status{}, fmt.Errorf("failed to read state: %w", stateErr)
	}
	return np.Status(time.Now()), nil
}

// formatTrack applies the template to the status
func formatTrack(status player.Status, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	data := nowData{
		Title:    status.Track.Title,
		Artist:   status.Track.Artist,
		Album:    status.Track.Album,
		Length:   status.Track.Length.Truncate(time.Second),
		Position: status.Position.Truncate(time.Second),
		Playing:  status.Playing,
		Volume:   int(status.Volume*100 + 0.5),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width, measured in
// display columns. Truncated text ends in "...".
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		truncated := runewidth.Truncate(text, width-ellipsisWidth, "")
		result := truncated + ellipsis

		// A wide rune at the cut can leave the result one column short
		if resultWidth := runewidth.StringWidth(result); resultWidth < width {
			return result + strings.Repeat(" ", width-resultWidth)
		}
		return result
	} else if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}

	return text
}

// marqueeText scrolls text that is wider than width through a fixed window.
//
// The window position is derived from at (speed columns per second over
// "text{separator}text"), so repeated invocations from a status bar step
// through the text without keeping state. Text that fits is padded.
func marqueeText(text string, width int, speed int, separator string, at time.Time) string {
	if width <= 0 {
		return text
	}

	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	extendedRunes := []rune(text + separator + text)
	totalChars := len(extendedRunes)
	position := int(at.Unix()*int64(speed)) % totalChars
	if position < 0 {
		position += totalChars
	}

	var result []rune
	resultWidth := 0

	for i := 0; i < totalChars && resultWidth < width; i++ {
		r := extendedRunes[(position+i)%totalChars]
		rw := runewidth.RuneWidth(r)

		if resultWidth+rw > width {
			break
		}
		result = append(result, r)
		resultWidth += rw
	}

	if resultWidth < width {
		return string(result) + strings.Repeat(" ", width-resultWidth)
	}
	return string(result)
}
