package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Long: `Show the running build's version, commit and build date.

For the latest published release, use "runtipi system version", which
also resolves the upstream release feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    version,
				"commit":     commit,
				"build_date": buildDate,
			}
			return printResult(info, func() {
				fmt.Printf("runtipi %s (commit: %s, built: %s)\n", version, commit, buildDate)
			})
		},
	}
}
