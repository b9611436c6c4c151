package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSystemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Platform-wide lifecycle operations",
		Long: `Inspect and transition the platform-wide state machine.

The platform is RUNNING, UPDATING, or RESTARTING. Update and restart
requests only succeed from RUNNING; the external runner restores
RUNNING once the real work finishes. Both operations are restricted
to production environments by the builtin policy.`,
	}

	cmd.AddCommand(newSystemStatusCommand())
	cmd.AddCommand(newSystemVersionCommand())
	cmd.AddCommand(newSystemUpdateCommand())
	cmd.AddCommand(newSystemRestartCommand())

	return cmd
}

func newSystemStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the platform status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			status, err := core.system.Status(ctx)
			if err != nil {
				return err
			}

			return printResult(map[string]string{"status": string(status)}, func() {
				fmt.Println(status)
			})
		},
	}
}

func newSystemVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current and latest platform versions",
		Long: `Show the running build version and the latest published release.

The latest version is resolved through the ephemeral cache with a
one-hour TTL; a failed release lookup leaves it empty rather than
failing the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			info := core.system.Version(ctx)

			return printResult(info, func() {
				fmt.Printf("current: %s\n", info.Current)
				if info.Latest == "" {
					fmt.Println("latest:  unknown")
				} else {
					fmt.Printf("latest:  %s\n", info.Latest)
				}
			})
		},
	}
}

func newSystemUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Request a platform update to the latest release",
		Long: `Request an update of the platform to the latest published release.

The request is rejected when the platform is already up to date, when
the latest release is unknown or older than the running build, or when
it crosses a major version boundary (cross-major updates need manual
intervention). On success the platform enters UPDATING and the update
intent is handed to the runner.`,
		Example: `  runtipi system update --config /etc/runtipi/runtipi.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			if err := core.system.Update(ctx); err != nil {
				return err
			}

			fmt.Println("update dispatched: platform is UPDATING until the runner settles it")
			return nil
		},
	}
}

func newSystemRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Request a platform restart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			if err := core.system.Restart(ctx); err != nil {
				return err
			}

			fmt.Println("restart dispatched: platform is RESTARTING until the runner settles it")
			return nil
		},
	}
}
