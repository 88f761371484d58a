// Package search implements hybrid retrieval: parallel vector and
// keyword legs, per-class weighted fusion over min-max normalized
// scores, and a gated cross-encoder rerank pass.
package search

import (
	"time"

	"github.com/resync-ops/resync/internal/store"
)

// QueryClass is the retrieval profile assigned to a query.
type QueryClass string

const (
	// ClassExactMatch covers queries carrying TWS identifiers (job
	// names, return codes, message ids). Keyword-heavy.
	ClassExactMatch QueryClass = "EXACT_MATCH"

	// ClassSemantic covers conceptual "how/why" questions. Vector-heavy.
	ClassSemantic QueryClass = "SEMANTIC"

	// ClassMixed covers queries with both an identifier and conceptual
	// phrasing. Balanced.
	ClassMixed QueryClass = "MIXED"

	// ClassDefault is everything else; uses the configured weights.
	ClassDefault QueryClass = "DEFAULT"
)

// Weights splits fused relevance between the two legs. Vector and
// Keyword always sum to 1.
type Weights struct {
	Vector  float64
	Keyword float64
}

// WeightsFor returns the fusion weights for a query class. The
// fallback argument supplies the DEFAULT class weights.
func WeightsFor(class QueryClass, fallback Weights) Weights {
	switch class {
	case ClassExactMatch:
		return Weights{Vector: 0.2, Keyword: 0.8}
	case ClassSemantic:
		return Weights{Vector: 0.8, Keyword: 0.2}
	case ClassMixed:
		return Weights{Vector: 0.5, Keyword: 0.5}
	default:
		return fallback
	}
}

// Result is one fused retrieval hit.
type Result struct {
	DocumentID string              `json:"document_id"`
	ChunkID    string              `json:"chunk_id"`
	Content    string              `json:"content"`
	Metadata   store.ChunkMetadata `json:"metadata"`

	// Score is the fused relevance in [0,1]. After a rerank pass it is
	// the reranker's score instead.
	Score float64 `json:"score"`

	// VectorScore and KeywordScore are the normalized per-leg scores
	// before fusion; zero when the leg did not return the chunk.
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`

	Reranked bool `json:"reranked,omitempty"`
}

// Response is the full retrieval outcome, including the diagnostics
// the stats command and the router surface.
type Response struct {
	Query    string        `json:"query"`
	Class    QueryClass    `json:"class"`
	Results  []Result      `json:"results"`
	Reranked bool          `json:"reranked"`
	Degraded bool          `json:"degraded,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}
