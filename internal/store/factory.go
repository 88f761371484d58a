package store

import (
	"context"
	"log/slog"

	"github.com/resync-ops/resync/internal/config"
)

// New selects a VectorStore from configuration: PostgreSQL/pgvector
// when a database URL is set, the in-memory store otherwise.
func New(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	if cfg.UseMemoryVectorStore() {
		slog.Info("using in-memory vector store",
			slog.Int("dims", cfg.Storage.EmbedDim))
		return NewMemoryVectorStore(cfg.Storage.EmbedDim), nil
	}

	slog.Info("using pgvector store",
		slog.Int("dims", cfg.Storage.EmbedDim))
	return NewPgVectorStore(ctx, cfg.Storage.DatabaseURL, cfg.Storage.EmbedDim)
}
