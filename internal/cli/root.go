package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfg *Config

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "playlink",
		Short: "CLI client for the playlink connection server",
		Long: `playlink is a CLI client for the playlink websocket server.

The shell command opens a persistent connection and accepts interactive
commands for logging in, updating resources, and sending gifts. Inbound
server messages, including gift notifications, are printed as they arrive.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server websocket URL (env: PLAYLINK_SERVER)")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", cfg.JSON, "Print inbound messages as JSON lines")

	// Add subcommands
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
