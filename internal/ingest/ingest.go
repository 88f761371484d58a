// Package ingest moves documents into the vector store: chunk,
// deduplicate by content hash, embed in batches, upsert. Reindexing
// replaces a document atomically from the reader's point of view by
// deleting then re-ingesting under a per-document serialization.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/resync-ops/resync/internal/chunk"
	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/store"
	"github.com/resync-ops/resync/internal/telemetry"
)

// Stats summarizes one ingestion run.
type Stats struct {
	ChunksTotal    int           `json:"chunks_total"`
	ChunksIngested int           `json:"chunks_ingested"`
	DedupHits      int           `json:"dedup_hits"`
	BytesEmbedded  int           `json:"bytes_embedded"`
	EmbedDuration  time.Duration `json:"embed_duration"`
	UpsertDuration time.Duration `json:"upsert_duration"`
}

// Ingestor writes chunked documents into the store. Reads (dedup
// checks) go against the read collection, writes against the write
// collection; pointing them at different collections enables
// blue/green reindexing.
type Ingestor struct {
	vs              store.VectorStore
	embedder        embed.Embedder
	chunker         chunk.Chunker
	collectionRead  string
	collectionWrite string
	metrics         *telemetry.Metrics

	// mu guards byDoc, the per-document serialization locks.
	mu    sync.Mutex
	byDoc map[string]*sync.Mutex
}

// New creates an ingestor. metrics may be nil.
func New(vs store.VectorStore, embedder embed.Embedder, chunker chunk.Chunker, collectionRead, collectionWrite string, metrics *telemetry.Metrics) *Ingestor {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Ingestor{
		vs:              vs,
		embedder:        embedder,
		chunker:         chunker,
		collectionRead:  collectionRead,
		collectionWrite: collectionWrite,
		metrics:         metrics,
		byDoc:           make(map[string]*sync.Mutex),
	}
}

func (in *Ingestor) docLock(docID string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, ok := in.byDoc[docID]
	if !ok {
		l = &sync.Mutex{}
		in.byDoc[docID] = l
	}
	return l
}

// Ingest chunks a document and writes the chunks the store has not
// seen. Re-ingesting unchanged content is a no-op per chunk.
func (in *Ingestor) Ingest(ctx context.Context, doc *chunk.Document) (*Stats, error) {
	if doc == nil || doc.DocumentID == "" {
		return nil, errors.NewValidationError("document needs an id", nil)
	}

	l := in.docLock(doc.DocumentID)
	l.Lock()
	defer l.Unlock()

	return in.ingest(ctx, doc)
}

func (in *Ingestor) ingest(ctx context.Context, doc *chunk.Document) (*Stats, error) {
	chunks, err := in.chunker.Chunk(ctx, doc)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ChunksTotal: len(chunks)}

	// Drop chunks whose content hash already exists.
	fresh := make([]*store.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		exists, err := in.vs.ExistsBySHA256(ctx, in.collectionRead, ch.SHA256)
		if err != nil {
			return stats, err
		}
		if exists {
			stats.DedupHits++
			continue
		}
		fresh = append(fresh, ch)
	}
	in.metrics.IngestDedupHits.Add(float64(stats.DedupHits))
	if len(fresh) == 0 {
		return stats, nil
	}

	if err := in.embedChunks(ctx, fresh, stats); err != nil {
		return stats, err
	}

	upsertStart := time.Now()
	if err := in.vs.Upsert(ctx, in.collectionWrite, fresh); err != nil {
		return stats, err
	}
	stats.UpsertDuration = time.Since(upsertStart)
	stats.ChunksIngested = len(fresh)
	in.metrics.IngestChunksTotal.Add(float64(len(fresh)))

	slog.Info("document ingested",
		slog.String("document", doc.DocumentID),
		slog.Int("chunks", stats.ChunksIngested),
		slog.Int("dedup_hits", stats.DedupHits))
	return stats, nil
}

// embedChunks fills in embeddings batch by batch.
func (in *Ingestor) embedChunks(ctx context.Context, chunks []*store.Chunk, stats *Stats) error {
	start := time.Now()
	for base := 0; base < len(chunks); base += embed.DefaultBatchSize {
		end := base + embed.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-base)
		for _, ch := range chunks[base:end] {
			text := ch.EmbedText()
			texts = append(texts, text)
			stats.BytesEmbedded += len(text)
		}

		vecs, err := in.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, vec := range vecs {
			chunks[base+i].Embedding = vec
		}
	}
	stats.EmbedDuration = time.Since(start)
	in.metrics.IngestBytesEmbedded.Add(float64(stats.BytesEmbedded))
	return nil
}

// Reindex replaces a document: delete every stored chunk, then ingest
// the new content. Serialized per document so a concurrent Ingest
// cannot interleave with the delete.
func (in *Ingestor) Reindex(ctx context.Context, doc *chunk.Document) (*Stats, error) {
	if doc == nil || doc.DocumentID == "" {
		return nil, errors.NewValidationError("document needs an id", nil)
	}

	l := in.docLock(doc.DocumentID)
	l.Lock()
	defer l.Unlock()

	removed, err := in.vs.DeleteByDocumentID(ctx, in.collectionWrite, doc.DocumentID)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		slog.Info("reindex removed stale chunks",
			slog.String("document", doc.DocumentID),
			slog.Int64("removed", removed))
	}
	return in.ingest(ctx, doc)
}

// Remove deletes a document's chunks from the write collection.
func (in *Ingestor) Remove(ctx context.Context, docID string) (int64, error) {
	if docID == "" {
		return 0, errors.NewEmptyKeyError("document id")
	}

	l := in.docLock(docID)
	l.Lock()
	defer l.Unlock()

	removed, err := in.vs.DeleteByDocumentID(ctx, in.collectionWrite, docID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("document removed",
			slog.String("document", docID),
			slog.Int64("chunks", removed))
	}
	return removed, nil
}
