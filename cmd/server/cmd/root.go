package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Realtime presence and broadcast server",
	Long: `relay serves authenticated websocket connections for a multi-device chat
backend: presence, conversation rooms and message fan-out.

Use "relay [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
