package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/autostart"
	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/ipc"
)

var installNoStart bool

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run the spotctl daemon at logon",
	Long: `Register the spotctl daemon to start automatically when you log on.

This command will:
  - Add a spotctl entry under HKCU\Software\Microsoft\Windows\CurrentVersion\Run
  - Point the daemon's log at the spotctl data directory
  - Start the daemon now, unless it is already running or --no-start is given`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		dataDir, err := config.GetDataDir()
		if err != nil {
			return err
		}
		logPath := filepath.Join(dataDir, "logs")

		// Create log directory if it doesn't exist
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile := filepath.Join(logPath, "spotctl.log")

		entry := autostart.Entry{
			BinaryPath: binaryPath,
			Args:       []string{"daemon", "--log-file", logFile},
		}

		if existing, ok, err := autostart.Installed(); err != nil {
			return err
		} else if ok && existing != entry.CommandLine() {
			fmt.Println("Replacing existing logon entry:")
			fmt.Printf("  %s\n", existing)
		}

		if err := autostart.Install(entry); err != nil {
			return err
		}
		fmt.Printf("✓ Registered logon entry %q\n", autostart.ValueName)

		if !installNoStart {
			started, err := startDaemon(entry)
			if err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}
			if started {
				fmt.Println("✓ Daemon started")
			} else {
				fmt.Println("✓ Daemon already running")
			}
		}

		fmt.Printf("✓ Logs will be written to %s\n", logFile)
		fmt.Println("\nThe spotctl daemon will start automatically on logon.")
		fmt.Println("\nYou can check the daemon status with:")
		fmt.Println("  spotctl status")
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  spotctl uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().BoolVar(&installNoStart, "no-start", false, "Only register the logon entry")
}

// startDaemon launches the daemon in the background unless one already
// answers on the control socket
func startDaemon(entry autostart.Entry) (bool, error) {
	cfg, err := config.Load()
	if err != nil {
		return false, err
	}
	address := controlAddress(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := ipc.Call(ctx, address, ipc.Request{Op: ipc.OpPing}); err == nil {
		return false, nil
	}

	c := exec.Command(entry.BinaryPath, entry.Args...)
	if err := c.Start(); err != nil {
		return false, err
	}
	return true, c.Process.Release()
}
