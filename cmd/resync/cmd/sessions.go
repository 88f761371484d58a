package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/output"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversation sessions",
		Long: `List or clear conversation sessions.

Sessions expire on their own after the configured idle TTL; clear
removes one early.

Examples:
  resync sessions
  resync sessions clear s1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsList(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsList(cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <id>",
		Short: "Delete one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Sessions.Delete(ctx, args[0]); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("session %s cleared", args[0])
				return nil
			})
		},
	})

	return cmd
}

func runSessionsList(cmd *cobra.Command) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := output.New(cmd.OutOrStdout())

		ids, err := a.Sessions.List(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			out.Status("", "no live sessions")
			return nil
		}

		rows := [][]string{{"ID", "USER", "TURNS", "LAST ACTIVE"}}
		for _, id := range ids {
			sess, err := a.Sessions.Get(ctx, id)
			if err != nil {
				continue
			}
			rows = append(rows, []string{
				sess.ID,
				sess.UserID,
				strconv.Itoa(sess.TurnCount),
				sess.LastActive.Format("2006-01-02 15:04:05"),
			})
		}
		out.Table(rows)
		return nil
	})
}
