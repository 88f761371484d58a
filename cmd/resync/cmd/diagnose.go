package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/diagnostic"
	"github.com/resync-ops/resync/internal/output"
)

func newDiagnoseCmd() *cobra.Command {
	var stateFile string
	var resume bool

	cmd := &cobra.Command{
		Use:   "diagnose <problem>",
		Short: "Run the diagnostic engine against a problem",
		Long: `Drive a problem through the diagnostic state machine.

The engine loops hypothesis, research, and verification until it is
confident enough to propose actions. Proposals park in the audit queue
for approval; the run state is saved to --state so the run can resume
after a reviewer decides.

Examples:
  resync diagnose "AWSBH001 abended with rc=8 overnight"
  resync diagnose --resume --state diag.json
  resync audit approve <id> --by ops && resync diagnose --resume --state diag.json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			problem := strings.Join(args, " ")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runDiagnose(ctx, cmd, a, problem, stateFile, resume)
			})
		},
	}

	cmd.Flags().StringVar(&stateFile, "state", "diagnose.json", "File holding a parked run's state")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume a parked run from --state")

	return cmd
}

func runDiagnose(ctx context.Context, cmd *cobra.Command, a *app.App, problem, stateFile string, resume bool) error {
	out := output.New(cmd.OutOrStdout())

	var st *diagnostic.State
	var err error
	if resume {
		data, rerr := os.ReadFile(stateFile)
		if rerr != nil {
			return rerr
		}
		parked := &diagnostic.State{}
		if uerr := json.Unmarshal(data, parked); uerr != nil {
			return uerr
		}
		st, err = a.Diagnostic.Resume(ctx, parked)
	} else {
		st, err = a.Diagnostic.Run(ctx, problem)
	}
	if err != nil {
		return err
	}

	for _, f := range st.Findings {
		out.Status("  ", f)
	}
	for _, action := range st.ProposedActions {
		icon := "⏳"
		if action.Executed {
			icon = "✅"
		}
		out.Statusf(icon, "%s %s (%s)", action.Tool, action.Job, action.Reason)
	}

	if st.Outcome == diagnostic.OutcomePendingApproval {
		data, merr := json.MarshalIndent(st, "", "  ")
		if merr != nil {
			return merr
		}
		if werr := os.WriteFile(stateFile, data, 0o644); werr != nil {
			return werr
		}
		out.Warningf("proposal parked for approval; state saved to %s", stateFile)
		out.Status("", "approve with 'resync audit list' and 'resync audit approve <id>', then rerun with --resume")
		return nil
	}

	out.Statusf("🩺", "outcome: %s (iteration %d, confidence %.2f)", st.Outcome, st.Iteration, st.Confidence)
	out.Status("", st.FinalResult)
	return nil
}
