package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/config"
	"github.com/resync-ops/resync/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and configuration",
		Long: `Run preflight checks against the current configuration.

Probes Redis and PostgreSQL connectivity, verifies the capability
endpoints are configured, and checks the log directory. Warnings mean
Resync runs degraded; failures mean it cannot run.

Examples:
  resync doctor
  resync doctor --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			checker := preflight.New(cfg,
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(ctx)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}
