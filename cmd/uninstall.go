package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotctl/internal/autostart"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop running the spotctl daemon at logon",
	Long: `Remove the spotctl logon entry so the daemon no longer starts automatically.

A daemon that is already running keeps running until it is stopped or
you log off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		existing, ok, err := autostart.Installed()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Daemon is not installed (no logon entry)")
			return nil
		}

		if err := autostart.Uninstall(); err != nil {
			return err
		}

		fmt.Printf("✓ Removed logon entry: %s\n", existing)
		fmt.Println("\nThe spotctl daemon has been uninstalled successfully.")
		fmt.Println("It will no longer run automatically on logon.")
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  spotctl install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
