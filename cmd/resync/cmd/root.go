// Package cmd provides the CLI commands for Resync.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/config"
	"github.com/resync-ops/resync/internal/logging"
	"github.com/resync-ops/resync/internal/profiling"
	"github.com/resync-ops/resync/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the resync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Operational intelligence for IBM Workload Scheduler",
		Long: `Resync answers operational questions about a TWS environment.

It combines hybrid retrieval over ingested runbooks with a live plan
knowledge graph, an intent-routed agent whose write actions queue for
human approval, and a diagnostic engine for structured incident work.

Run 'resync ingest ./docs' to load documentation, then 'resync chat'
or 'resync search' to query it.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("resync version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.resync/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newDiagnoseCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newLocksCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startProfilingAndLogging starts CPU/trace profiling and logging if
// the flags ask for them.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	// Logging must never block the command itself.
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		loggingCleanup = cleanup
	}

	var err error
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}
	return nil
}

// stopProfilingAndLogging stops profiling, writes the memory profile
// if requested, and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// withApp loads configuration from the working directory, wires the
// application, runs fn, and tears everything down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
