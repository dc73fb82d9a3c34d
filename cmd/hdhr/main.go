// Hdhr is a discovery and control utility for HDHomeRun tuners.
//
// It locates devices over the vendor UDP broadcast protocol and the
// HTTP directory service, queries tuner status and channel lineups, and
// issues control commands (variable get/set, restart, channel scans)
// over the TCP control protocol.
//
// Usage:
//
//	hdhr [command] [flags]
//
// Running without arguments performs a network scan.
// See 'hdhr --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tunerkit/hdhr/internal/logging"
	"github.com/tunerkit/hdhr/internal/version"
)

func main() {
	if err := logging.InitializeFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hdhr",
	Short: "HDHomeRun Discovery and Control Utility",
	Long: `A standalone utility for working with HDHomeRun network tuners.

Discovers devices over UDP broadcast and the HTTP directory service,
shows tuner status and channel lineups, and issues control commands.

If no command is specified, a network scan runs automatically.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: scan when no subcommand provided
		return runScan(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hdhr %s (commit: %s)\n", version.Version, version.Commit)
	},
}
