package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
		Long: `Issue, resolve, rotate and revoke sessions.

Sessions live in the configured cache, so they only survive the
process when the cache engine is redis. Rotation keeps the previous
identifier valid for a short grace window so in-flight requests that
captured it do not fail mid-rotation.`,
	}

	cmd.AddCommand(newSessionCreateCommand())
	cmd.AddCommand(newSessionResolveCommand())
	cmd.AddCommand(newSessionRefreshCommand())
	cmd.AddCommand(newSessionRevokeCommand())

	return cmd
}

func newSessionCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <user-id>",
		Short: "Issue a new session for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			id, err := core.sessions.Create(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(map[string]string{"session_id": id, "user_id": args[0]}, func() {
				fmt.Println(id)
			})
		},
	}
}

func newSessionResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <session-id>",
		Short: "Resolve a session to its user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			userID, err := core.sessions.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(map[string]string{"session_id": args[0], "user_id": userID}, func() {
				fmt.Println(userID)
			})
		},
	}
}

func newSessionRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <session-id>",
		Short: "Rotate a session identifier",
		Long: `Rotate a session: a fresh identifier is issued with the full TTL and
the old one stays valid for the grace window before expiring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			newID, err := core.sessions.Refresh(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(map[string]string{"session_id": newID}, func() {
				fmt.Println(newID)
			})
		},
	}
}

func newSessionRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke a session immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			if err := core.sessions.Revoke(ctx, args[0]); err != nil {
				return err
			}

			fmt.Println("session revoked")
			return nil
		},
	}
}
