package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resync-ops/resync/internal/app"
	"github.com/resync-ops/resync/internal/output"
	"github.com/resync-ops/resync/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	docType string
	format  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the ingested knowledge base",
		Long: `Search the knowledge base using hybrid retrieval.

Combines keyword (BM25) and semantic (embedding) search with weighted
fusion; uncertain result sets go through a rerank pass when an LLM
endpoint is configured.

Examples:
  resync search "AWSBH001 rc=8 recovery"
  resync search "how do freeday calendars work" --limit 5
  resync search "EQQ3120E" --type runbook --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runSearch(ctx, cmd, a, query, opts)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.docType, "type", "t", "", "Filter by document type (e.g. runbook)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app.App, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	filters := store.Filters{}
	if opts.docType != "" {
		filters["doc_type"] = opts.docType
	}

	start := time.Now()
	resp := a.QueryRouter.Route(ctx, query, filters)
	if opts.limit > 0 && len(resp.Documents) > opts.limit {
		resp.Documents = resp.Documents[:opts.limit]
	}

	if opts.format == "json" {
		return out.JSON(resp)
	}

	if len(resp.Documents) == 0 {
		out.Warning("no results")
		if resp.Metadata.Error != "" {
			out.Warning(resp.Metadata.Error)
		}
		return nil
	}

	out.Statusf("🔍", "%d results (%s path, %s)", len(resp.Documents),
		resp.Classification.Path, time.Since(start).Round(time.Millisecond))
	if resp.Metadata.Degraded {
		out.Warning("one retrieval leg failed; results are degraded")
	}
	out.Newline()

	rows := [][]string{{"SCORE", "DOCUMENT", "SECTION", "SNIPPET"}}
	for _, r := range resp.Documents {
		rows = append(rows, []string{
			fmt.Sprintf("%.3f", r.Score),
			r.DocumentID,
			r.Metadata.SectionPath,
			snippet(r.Content, 80),
		})
	}
	out.Table(rows)
	return nil
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
