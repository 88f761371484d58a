package chunk

import (
	"context"
	"regexp"
	"strings"

	"github.com/resync-ops/resync/internal/store"
)

// TWSOptimized is structure-aware chunking plus identifier lifting:
// error codes, job names, workstations, and console commands found in
// a chunk land in its metadata, where the keyword index boosts them
// and filters can reach them.
type TWSOptimized struct {
	inner *StructureAware
}

// Verify interface implementation at compile time.
var _ Chunker = (*TWSOptimized)(nil)

// commandPattern matches TWS console command lines.
var commandPattern = regexp.MustCompile(`(?mi)^\s*%?\s*(conman|composer|optman|planman|datecalc|rmstdlist)\b[^\n]*`)

// NewTWSOptimized creates the TWS-aware chunker.
func NewTWSOptimized(maxTokens int) *TWSOptimized {
	return &TWSOptimized{inner: NewStructureAware(maxTokens)}
}

func (c *TWSOptimized) Name() string { return StrategyTWSOptimized }

func (c *TWSOptimized) Chunk(ctx context.Context, doc *Document) ([]*store.Chunk, error) {
	chunks, err := c.inner.Chunk(ctx, doc)
	if err != nil {
		return nil, err
	}

	for _, ch := range chunks {
		entities := store.ExtractEntities(ch.Content)
		ch.Metadata.ErrorCodes = entities.Codes
		ch.Metadata.JobNames = entities.Jobs
		ch.Metadata.Workstations = entities.Workstations
		ch.Metadata.Commands = extractCommands(ch.Content)
		if ch.Metadata.ChunkType == "text" && len(ch.Metadata.Commands) > 0 {
			ch.Metadata.ChunkType = "procedure"
		}
	}
	return chunks, nil
}

func extractCommands(content string) []string {
	var commands []string
	seen := make(map[string]bool)
	for _, m := range commandPattern.FindAllString(content, -1) {
		cmd := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m), "%"))
		cmd = strings.TrimSpace(cmd)
		if cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		commands = append(commands, cmd)
	}
	return commands
}
