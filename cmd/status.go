package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/ipc"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and player status",
	Long:  `Show the daemon's lifecycle state, the volume control mode and the current playback status.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callDaemon(ipc.Request{Op: ipc.OpStatus})
		if err != nil {
			return err
		}
		printStatus(resp.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(s *ipc.Status) {
	if s == nil {
		fmt.Println("No status reported")
		return
	}

	fmt.Printf("State:          %s\n", s.State)
	fmt.Printf("Player running: %t\n", s.Running)
	if s.VolumeControl != "" {
		fmt.Printf("Volume control: %s\n", s.VolumeControl)
	}
	if s.Track == "" {
		return
	}

	st := s.Player()
	state := "paused"
	if st.Playing {
		state = "playing"
	}

	fmt.Println()
	fmt.Printf("Track:    %s\n", st.Track.Title)
	fmt.Printf("Artist:   %s\n", st.Track.Artist)
	if st.Track.Album != "" {
		fmt.Printf("Album:    %s\n", st.Track.Album)
	}
	fmt.Printf("Position: %s / %s (%s)\n",
		st.Position.Truncate(time.Second), st.Track.Length.Truncate(time.Second), state)
	fmt.Printf("Volume:   %.0f%%\n", st.Volume*100)
}
