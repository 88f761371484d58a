package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/resync-ops/resync/internal/errors"
)

// PgVectorStore is the production VectorStore on PostgreSQL/pgvector.
// Search is two-phase: a binary-quantized Hamming scan over the HNSW
// bit index selects candidates, which are rescored by exact halfvec
// cosine distance.
type PgVectorStore struct {
	pool *pgxpool.Pool
	dims int
}

var _ VectorStore = (*PgVectorStore)(nil)

// NewPgVectorStore connects to PostgreSQL and ensures the schema.
func NewPgVectorStore(ctx context.Context, dsn string, dims int) (*PgVectorStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConnectionError("parse database url", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewConnectionError("connect to postgres", err)
	}

	s := &PgVectorStore{pool: pool, dims: dims}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the extension, table, halfvec sync trigger, and
// indexes. All statements are idempotent.
func (s *PgVectorStore) ensureSchema(ctx context.Context) error {
	stmts := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_embeddings (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	collection TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	sha256 TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	embedding_half halfvec(%[1]d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (collection, document_id, chunk_id)
);

CREATE OR REPLACE FUNCTION sync_embedding_half() RETURNS trigger AS $f$
BEGIN
	NEW.embedding_half := NEW.embedding::halfvec(%[1]d);
	RETURN NEW;
END
$f$ LANGUAGE plpgsql;

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_trigger WHERE tgname = 'document_embeddings_half_sync'
	) THEN
		CREATE TRIGGER document_embeddings_half_sync
			BEFORE INSERT OR UPDATE OF embedding ON document_embeddings
			FOR EACH ROW EXECUTE FUNCTION sync_embedding_half();
	END IF;
END
$$;

CREATE INDEX IF NOT EXISTS document_embeddings_binary_idx
	ON document_embeddings USING hnsw
	((binary_quantize(embedding_half)::bit(%[1]d)) bit_hamming_ops);

CREATE INDEX IF NOT EXISTS document_embeddings_collection_idx
	ON document_embeddings (collection);

CREATE INDEX IF NOT EXISTS document_embeddings_sha256_idx
	ON document_embeddings (collection, sha256);
`, s.dims)

	if _, err := s.pool.Exec(ctx, stmts); err != nil {
		return errors.NewQueryError("ensure schema", err)
	}
	return nil
}

// Upsert writes chunks in one transaction. The conflict key is
// (collection, document_id, chunk_id).
func (s *PgVectorStore) Upsert(ctx context.Context, collection string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) != s.dims {
			return errors.NewDimensionMismatchError(s.dims, len(c.Embedding))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPgError("begin upsert transaction", err)
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO document_embeddings (collection, document_id, chunk_id, content, metadata, sha256, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (collection, document_id, chunk_id) DO UPDATE SET
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	sha256 = EXCLUDED.sha256,
	embedding = EXCLUDED.embedding,
	updated_at = NOW()`

	for _, c := range chunks {
		meta, err := c.Metadata.MarshalJSONB()
		if err != nil {
			return errors.NewDataParsingError("marshal chunk metadata", err)
		}
		if _, err := tx.Exec(ctx, q,
			collection, c.DocumentID, c.ChunkID, c.Content, meta, c.SHA256,
			pgvector.NewVector(c.Embedding),
		); err != nil {
			return mapPgError("upsert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError("commit upsert", err)
	}
	return nil
}

// Search runs the two-phase query. Filters compile into metadata
// equality predicates inside the candidate CTE, so the Hamming phase
// already honors them.
func (s *PgVectorStore) Search(ctx context.Context, collection string, query []float32, k int, filters Filters) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, errors.NewDimensionMismatchError(s.dims, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	args := []any{collection, vec, candidateLimit(k)}

	var where strings.Builder
	for key, val := range filters {
		args = append(args, val)
		if key == "sha256" {
			fmt.Fprintf(&where, " AND sha256 = $%d", len(args))
		} else {
			fmt.Fprintf(&where, " AND metadata->>%s = $%d", quoteLiteral(key), len(args))
		}
	}

	q := fmt.Sprintf(`
WITH candidates AS (
	SELECT id, document_id, chunk_id, content, metadata, embedding_half
	FROM document_embeddings
	WHERE collection = $1%[2]s
	ORDER BY binary_quantize(embedding_half)::bit(%[1]d) <~> binary_quantize($2::vector)::bit(%[1]d)
	LIMIT $3
)
SELECT document_id, chunk_id, content, metadata,
	1 - (embedding_half <=> $2::halfvec(%[1]d)) AS similarity
FROM candidates
ORDER BY similarity DESC
LIMIT %[3]d`, s.dims, where.String(), k)

	start := time.Now()
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgError("vector search", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocumentID, &r.ChunkID, &r.Content, &r.Metadata, &r.Similarity); err != nil {
			return nil, errors.NewDataParsingError("scan search row", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("vector search rows", err)
	}

	slog.Debug("two-phase vector search",
		slog.String("collection", collection),
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// ExistsBySHA256 reports whether any chunk carries the content hash.
func (s *PgVectorStore) ExistsBySHA256(ctx context.Context, collection, sha256 string) (bool, error) {
	if sha256 == "" {
		return false, errors.NewEmptyKeyError("sha256")
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_embeddings WHERE collection = $1 AND sha256 = $2)`,
		collection, sha256,
	).Scan(&exists)
	if err != nil {
		return false, mapPgError("sha256 lookup", err)
	}
	return exists, nil
}

// DeleteByDocumentID removes all chunks of a document.
func (s *PgVectorStore) DeleteByDocumentID(ctx context.Context, collection, documentID string) (int64, error) {
	if documentID == "" {
		return 0, errors.NewEmptyKeyError("document_id")
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_embeddings WHERE collection = $1 AND document_id = $2`,
		collection, documentID)
	if err != nil {
		return 0, mapPgError("delete document", err)
	}
	return tag.RowsAffected(), nil
}

// GetAllDocuments reads up to limit chunks, oldest first.
func (s *PgVectorStore) GetAllDocuments(ctx context.Context, collection string, limit int) ([]*Chunk, error) {
	if limit <= 0 {
		limit = DefaultCorpusLimit
	}
	rows, err := s.pool.Query(ctx, `
SELECT document_id, chunk_id, content, metadata, sha256, embedding
FROM document_embeddings
WHERE collection = $1
ORDER BY id
LIMIT $2`, collection, limit)
	if err != nil {
		return nil, mapPgError("read corpus", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.DocumentID, &c.ChunkID, &c.Content, &c.Metadata, &c.SHA256, &vec); err != nil {
			return nil, errors.NewDataParsingError("scan corpus row", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("read corpus rows", err)
	}
	return chunks, nil
}

// Count returns the number of chunks in the collection.
func (s *PgVectorStore) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_embeddings WHERE collection = $1`, collection,
	).Scan(&n)
	if err != nil {
		return 0, mapPgError("count chunks", err)
	}
	return n, nil
}

// Ping verifies connectivity.
func (s *PgVectorStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return mapPgError("ping postgres", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}

// quoteLiteral quotes a metadata key for interpolation into the JSONB
// accessor. Keys come from the fixed Filters vocabulary, not from user
// input, but quoting keeps the query well formed regardless.
func quoteLiteral(key string) string {
	return "'" + strings.ReplaceAll(key, "'", "''") + "'"
}

// mapPgError translates driver failures into the typed error taxonomy.
func mapPgError(op string, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError(op, 0)
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.NewNotFoundError("row", op)
	case strings.Contains(err.Error(), "too many clients"):
		return errors.NewPoolExhaustedError(err)
	case strings.Contains(err.Error(), "connection"):
		return errors.NewConnectionError(op, err)
	default:
		return errors.NewQueryError(op, err)
	}
}
