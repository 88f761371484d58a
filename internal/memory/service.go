package memory

import (
	"context"
	"log/slog"

	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/session"
)

// Service ties extraction, storage, and retrieval together.
type Service struct {
	store     Store
	embedder  embed.Embedder
	extractor *Extractor

	// pushThreshold is the minimum similarity for proactive surfacing.
	pushThreshold float64
}

// NewService wires the memory service.
func NewService(store Store, embedder embed.Embedder, extractor *Extractor, pushThreshold float64) *Service {
	return &Service{
		store:         store,
		embedder:      embedder,
		extractor:     extractor,
		pushThreshold: pushThreshold,
	}
}

// Store exposes the underlying store for management commands.
func (s *Service) Store() Store { return s.store }

// Remember extracts memories from a session and saves the new ones.
// Returns how many were stored (duplicates are silently skipped).
func (s *Service) Remember(ctx context.Context, sess *session.Session) (int, error) {
	if s.extractor == nil {
		return 0, nil
	}
	entries, err := s.extractor.Extract(ctx, sess)
	if err != nil {
		return 0, err
	}

	var stored int
	for _, e := range entries {
		vec, err := s.embedder.Embed(ctx, e.Content)
		if err != nil {
			return stored, err
		}
		e.Embedding = vec

		saved, err := s.store.Save(ctx, e)
		if err != nil {
			return stored, err
		}
		if saved {
			stored++
		}
	}
	if stored > 0 {
		slog.Info("memories stored",
			slog.String("session", sess.ID),
			slog.Int("count", stored))
	}
	return stored, nil
}

// Recall is pull retrieval: the user's memories most similar to the
// query, best first, narrowed by category or confidence when the
// filter asks.
func (s *Service) Recall(ctx context.Context, userID, query string, k int, f Filter) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, userID, vec, k, f)
}

// Surface is push retrieval: memories similar enough to the current
// query to volunteer unprompted. Failures return nothing; push
// retrieval must never break the main flow.
func (s *Service) Surface(ctx context.Context, userID, query string, k int) []Hit {
	hits, err := s.Recall(ctx, userID, query, k, Filter{})
	if err != nil {
		slog.Warn("push retrieval failed", slog.Any("error", err))
		return nil
	}

	var surfaced []Hit
	for _, h := range hits {
		if h.Similarity >= s.pushThreshold {
			surfaced = append(surfaced, h)
		}
	}
	return surfaced
}
