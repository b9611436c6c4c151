package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// Build metadata, injected by Execute.
	buildVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "runtipi",
		Short: "runtipi - self-hosted app platform core",
		Long: `runtipi manages the lifecycle of a host platform and the applications
it hosts. It validates and records lifecycle transitions, hands the
real work to an external runner as fire-and-forget events, and
observes the runner's settlements.

The core never executes installs or restarts itself: a transition
request moves a record into a transient state (installing, stopping,
UPDATING, ...) and the runner writes the settled state back once the
work is done.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newSystemCommand())
	rootCmd.AddCommand(newAppCommand())
	rootCmd.AddCommand(newSessionCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
