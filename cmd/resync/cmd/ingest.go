package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/chunk"
	"github.com/resync-ops/resync/internal/ingest"
	"github.com/resync-ops/resync/internal/output"
)

func newIngestCmd() *cobra.Command {
	var watch bool
	var strategy string

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Ingest documentation into the knowledge base",
		Long: `Ingest markdown and text documents under a directory.

Documents are chunked, deduplicated by content hash, embedded, and
written to the vector store. With --watch the command keeps running
and re-ingests files as they change.

Examples:
  resync ingest ./runbooks
  resync ingest ./docs --strategy fixed_size
  resync ingest ./runbooks --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runIngest(ctx, cmd, a, args[0], strategy, watch)
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest files as they change")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Chunking strategy: structure_aware, fixed_size, tws_optimized, semantic")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, a *app.App, root, strategy string, watch bool) error {
	out := output.New(cmd.OutOrStdout())

	ingestor := a.Ingestor
	if strategy != "" {
		chunker, err := chunk.ByName(strategy, a.Embedder)
		if err != nil {
			return err
		}
		ingestor = ingest.New(a.VectorStore, a.Embedder, chunker,
			a.Config.Storage.CollectionRead, a.Config.Storage.CollectionWrite, a.Metrics)
	}

	w := ingest.NewWatcher(ingestor, root, 0)

	if watch {
		out.Statusf("👀", "watching %s for changes (ctrl-c to stop)", root)
		return w.Run(ctx)
	}

	if err := w.Sweep(ctx); err != nil {
		return err
	}
	if err := a.BM25.Rebuild(ctx); err != nil {
		return err
	}

	n, err := a.VectorStore.Count(ctx, a.Config.Storage.CollectionWrite)
	if err != nil {
		return err
	}
	out.Successf("ingested documents under %s (%d chunks in store)", root, n)
	return nil
}
