package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/audit"
	"github.com/resync-ops/resync/internal/output"
)

// auditListLimit caps one listing; the queue should never be this deep.
const auditListLimit = 100

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Review queued write actions",
		Long: `List, approve, or reject agent actions parked in the audit queue.

Write actions the agent was not confident enough to run wait here
until a human decides. Approval does not execute anything by itself;
a parked diagnostic run executes its actions on --resume.

Examples:
  resync audit list
  resync audit approve 7f3c... --by ops
  resync audit reject 7f3c... --by ops
  resync audit stats
  resync audit cleanup`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditList(cmd)
		},
	}

	cmd.AddCommand(newAuditListCmd())
	cmd.AddCommand(newAuditDecideCmd("approve", audit.StatusApproved))
	cmd.AddCommand(newAuditDecideCmd("reject", audit.StatusRejected))
	cmd.AddCommand(newAuditStatsCmd())
	cmd.AddCommand(newAuditCleanupCmd())

	return cmd
}

func newAuditListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditList(cmd)
		},
	}
}

func runAuditList(cmd *cobra.Command) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := output.New(cmd.OutOrStdout())

		pending, err := a.AuditQueue.GetPending(ctx, auditListLimit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			out.Status("", "audit queue is empty")
			return nil
		}

		rows := [][]string{{"ID", "ACTION", "TARGET", "CONFIDENCE", "REQUESTED BY", "AGE"}}
		for _, rec := range pending {
			rows = append(rows, []string{
				rec.ID,
				rec.Action,
				rec.Target,
				fmt.Sprintf("%.2f", rec.Confidence),
				rec.RequestedBy,
				time.Since(rec.CreatedAt).Round(time.Second).String(),
			})
		}
		out.Table(rows)
		return nil
	})
}

func newAuditDecideCmd(verb string, to audit.Status) *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: verb + " a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := output.New(cmd.OutOrStdout())
				if err := a.Reviewer.Decide(ctx, args[0], to, reviewer); err != nil {
					return err
				}
				out.Successf("%s %s by %s", args[0], to, reviewer)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reviewer, "by", "operator", "Reviewer recorded on the decision")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.AuditQueue.Stats(ctx)
				if err != nil {
					return err
				}
				return output.New(cmd.OutOrStdout()).JSON(stats)
			})
		},
	}
}

func newAuditCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Drop reviewed records past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := output.New(cmd.OutOrStdout())
				retention := time.Duration(a.Config.Audit.RetentionDays) * 24 * time.Hour
				n, err := a.AuditQueue.CleanupProcessed(ctx, retention)
				if err != nil {
					return err
				}
				out.Successf("removed %d processed records", n)
				return nil
			})
		},
	}
}
