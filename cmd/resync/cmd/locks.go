package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/output"
)

func newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Manage distributed locks",
		Long: `Inspect and clean up the per-job distributed locks.

Locks normally expire on their own; these commands exist for the rare
crashed holder whose lock outlived its work.

Examples:
  resync locks cleanup
  resync locks release job:AWSBH001`,
	}

	cmd.AddCommand(newLocksCleanupCmd())
	cmd.AddCommand(newLocksReleaseCmd())

	return cmd
}

func newLocksCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove locks older than the cleanup threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := output.New(cmd.OutOrStdout())
				n, err := a.Locks.CleanupStale(ctx, a.Config.LockCleanupMaxAge())
				if err != nil {
					return err
				}
				out.Successf("removed %d stale locks", n)
				return nil
			})
		},
	}
}

func newLocksReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <key>",
		Short: "Force-release one lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := output.New(cmd.OutOrStdout())
				released, err := a.Locks.ForceRelease(ctx, args[0])
				if err != nil {
					return err
				}
				if !released {
					out.Warningf("no lock held for %s", args[0])
					return nil
				}
				out.Successf("released %s", args[0])
				return nil
			})
		},
	}
}
