package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/chunk"
	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/store"
)

const collection = "tws_docs"

func newTestIngestor(t *testing.T) (*Ingestor, store.VectorStore) {
	t.Helper()
	vs := store.NewMemoryVectorStore(64)
	t.Cleanup(func() { _ = vs.Close() })
	chunker, err := chunk.ByName(chunk.StrategyTWSOptimized, nil)
	require.NoError(t, err)
	return New(vs, embed.NewStaticEmbedder(64), chunker, collection, collection, nil), vs
}

func runbook(body string) *chunk.Document {
	return &chunk.Document{
		DocumentID: "runbooks/rc8.md",
		Title:      "RC=8 Recovery",
		Content:    body,
	}
}

const runbookV1 = `# Recovery

## Diagnose

Check whether the predecessor still holds the DB lock.

## Fix

Release AWSBH001 from HOLD and rerun it.
`

func TestIngestAndDeduplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in, vs := newTestIngestor(t)

	stats, err := in.Ingest(ctx, runbook(runbookV1))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksTotal)
	assert.Equal(t, 2, stats.ChunksIngested)
	assert.Zero(t, stats.DedupHits)
	assert.Positive(t, stats.BytesEmbedded)

	n, err := vs.Count(ctx, collection)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Second pass over unchanged content writes nothing.
	stats, err = in.Ingest(ctx, runbook(runbookV1))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DedupHits)
	assert.Zero(t, stats.ChunksIngested)

	n, err = vs.Count(ctx, collection)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestReindexReplacesDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in, vs := newTestIngestor(t)

	_, err := in.Ingest(ctx, runbook(runbookV1))
	require.NoError(t, err)

	oldHash := chunk.Fingerprint("Release AWSBH001 from HOLD and rerun it.")
	exists, err := vs.ExistsBySHA256(ctx, collection, oldHash)
	require.NoError(t, err)
	require.True(t, exists)

	const runbookV2 = `# Recovery

## Fix

Kill the predecessor first, then rerun AWSBH001.
`
	stats, err := in.Reindex(ctx, runbook(runbookV2))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksIngested)

	exists, err = vs.ExistsBySHA256(ctx, collection, oldHash)
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := vs.Count(ctx, collection)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestReindexFreshDocument(t *testing.T) {
	t.Parallel()

	in, _ := newTestIngestor(t)

	stats, err := in.Reindex(context.Background(), runbook(runbookV1))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksIngested)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in, vs := newTestIngestor(t)

	_, err := in.Ingest(ctx, runbook(runbookV1))
	require.NoError(t, err)

	removed, err := in.Remove(ctx, "runbooks/rc8.md")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	n, err := vs.Count(ctx, collection)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = in.Remove(ctx, "")
	assert.True(t, errors.IsValidation(err))
}

func TestIngestValidation(t *testing.T) {
	t.Parallel()

	in, _ := newTestIngestor(t)

	_, err := in.Ingest(context.Background(), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = in.Ingest(context.Background(), &chunk.Document{Content: "x"})
	assert.True(t, errors.IsValidation(err))
}

func TestSweepIngestsExistingFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "runbooks"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "runbooks", "rc8.md"), []byte(runbookV1), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "notes.txt"), []byte("CPU1 link flapped twice last week."), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "ignored.bin"), []byte{0x00, 0x01}, 0o644))

	in, vs := newTestIngestor(t)
	w := NewWatcher(in, root, 0)

	ctx := context.Background()
	require.NoError(t, w.Sweep(ctx))

	docs, err := vs.GetAllDocuments(ctx, collection, 0)
	require.NoError(t, err)

	byDoc := make(map[string]bool)
	for _, d := range docs {
		byDoc[d.DocumentID] = true
	}
	assert.True(t, byDoc["runbooks/rc8.md"])
	assert.True(t, byDoc["notes.txt"])
	assert.Len(t, byDoc, 2)
}

func TestLoadFileTitle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("intro\n\n# Scheduling Guide\n\nbody"), 0o644))

	doc, err := LoadFile(root, path)
	require.NoError(t, err)
	assert.Equal(t, "Scheduling Guide", doc.Title)
	assert.Equal(t, "guide.md", doc.DocumentID)

	// No header: file name wins.
	plain := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(plain, []byte("no header here"), 0o644))
	doc, err = LoadFile(root, plain)
	require.NoError(t, err)
	assert.Equal(t, "notes", doc.Title)
}
