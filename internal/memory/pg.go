package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/resync-ops/resync/internal/errors"
)

// PgStore persists memories in PostgreSQL with a pgvector embedding
// column for similarity retrieval.
type PgStore struct {
	pool *pgxpool.Pool
	dims int
}

var _ Store = (*PgStore)(nil)

// NewPgStore connects and ensures the memories table.
func NewPgStore(ctx context.Context, dsn string, dims int) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConnectionError("parse database url", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewConnectionError("connect to postgres", err)
	}

	s := &PgStore{pool: pool, dims: dims}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPgStoreWithPool wraps an existing pool, sharing it with the
// vector store.
func NewPgStoreWithPool(ctx context.Context, pool *pgxpool.Pool, dims int) (*PgStore, error) {
	s := &PgStore{pool: pool, dims: dims}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgStore) ensureSchema(ctx context.Context) error {
	stmts := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS operator_memories (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	verification TEXT NOT NULL DEFAULT 'unverified',
	session_id TEXT NOT NULL DEFAULT '',
	source_turns INTEGER[],
	extracted_at TIMESTAMPTZ,
	model TEXT NOT NULL DEFAULT '',
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, content_hash)
);

CREATE INDEX IF NOT EXISTS operator_memories_user_idx
	ON operator_memories (user_id, created_at DESC);
`, s.dims)

	if _, err := s.pool.Exec(ctx, stmts); err != nil {
		return errors.NewQueryError("ensure memories schema", err)
	}
	return nil
}

func (s *PgStore) Save(ctx context.Context, e *Entry) (bool, error) {
	if err := validateEntry(e); err != nil {
		return false, err
	}
	if e.Hash == "" {
		e.Hash = ContentHash(e.Content)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Verification == "" {
		e.Verification = VerificationUnverified
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO operator_memories
	(id, user_id, kind, category, content, content_hash, confidence,
	 verification, session_id, source_turns, extracted_at, model,
	 embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (user_id, content_hash) DO NOTHING`,
		e.ID, e.UserID, string(e.Kind), string(e.Category), e.Content, e.Hash,
		e.Confidence, string(e.Verification), e.Provenance.SessionID,
		e.Provenance.SourceTurns, e.Provenance.ExtractedAt, e.Provenance.Model,
		pgvector.NewVector(e.Embedding), e.CreatedAt)
	if err != nil {
		return false, errors.NewQueryError("save memory", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) Search(ctx context.Context, userID string, query []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dims {
		return nil, errors.NewDimensionMismatchError(s.dims, len(query))
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, kind, category, content, content_hash, confidence,
	verification, session_id, source_turns, extracted_at, model, created_at,
	1 - (embedding <=> $2) AS similarity
FROM operator_memories
WHERE user_id = $1 AND embedding IS NOT NULL
	AND verification <> 'rejected'
	AND ($4::text = '' OR category = $4::text)
	AND confidence >= $5
ORDER BY embedding <=> $2
LIMIT $3`, userID, pgvector.NewVector(query), k,
		string(f.Category), f.MinConfidence)
	if err != nil {
		return nil, errors.NewQueryError("search memories", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := scanEntry(rows, &h.Entry, &h.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryError("search memories rows", err)
	}
	return hits, nil
}

func (s *PgStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, kind, category, content, content_hash, confidence,
	verification, session_id, source_turns, extracted_at, model, created_at, 0.0
FROM operator_memories WHERE id = $1`, id)

	var e Entry
	var sim float64
	if err := scanEntry(row, &e, &sim); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("memory", id)
		}
		return nil, err
	}
	return &e, nil
}

// row abstracts pgx.Row and pgx.Rows for shared scanning.
type row interface {
	Scan(dest ...any) error
}

func scanEntry(r row, e *Entry, sim *float64) error {
	var extractedAt *time.Time
	err := r.Scan(&e.ID, &e.UserID, (*string)(&e.Kind), (*string)(&e.Category),
		&e.Content, &e.Hash, &e.Confidence, (*string)(&e.Verification),
		&e.Provenance.SessionID, &e.Provenance.SourceTurns, &extractedAt,
		&e.Provenance.Model, &e.CreatedAt, sim)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NewNotFoundError("memory", e.ID)
	}
	if err != nil {
		return errors.NewDataParsingError("scan memory row", err)
	}
	if extractedAt != nil {
		e.Provenance.ExtractedAt = *extractedAt
	}
	return nil
}

func (s *PgStore) Confirm(ctx context.Context, id string) error {
	return s.setVerification(ctx, id, VerificationConfirmed)
}

func (s *PgStore) Reject(ctx context.Context, id string) error {
	return s.setVerification(ctx, id, VerificationRejected)
}

func (s *PgStore) setVerification(ctx context.Context, id string, v Verification) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE operator_memories SET verification = $2 WHERE id = $1`,
		id, string(v))
	if err != nil {
		return errors.NewQueryError("review memory", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("memory", id)
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM operator_memories WHERE id = $1`, id)
	if err != nil {
		return errors.NewQueryError("delete memory", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("memory", id)
	}
	return nil
}

func (s *PgStore) DeleteUserMemories(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM operator_memories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.NewQueryError("delete user memories", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	// Rejected memories are listed too; the audit trail keeps them.
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, kind, category, content, content_hash, confidence,
	verification, session_id, source_turns, extracted_at, model, created_at, 0.0
FROM operator_memories
WHERE user_id = $1
ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, errors.NewQueryError("list memories", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sim float64
		if err := scanEntry(rows, &e, &sim); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryError("list memories rows", err)
	}
	return out, nil
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
