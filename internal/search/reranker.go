package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
)

// RerankResult is one scored document from a rerank pass.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score in [0,1].
	Score float64
}

// Reranker rescores query-document pairs jointly. More accurate than
// the bi-encoder legs, and much slower, which is why the gate exists.
type Reranker interface {
	// Rerank scores the documents against the query and returns them
	// sorted by score descending.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool
}

// NoOpReranker keeps the fused order. Used when reranking is disabled.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns the documents in their original order with strictly
// decreasing scores.
func (NoOpReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	return results, nil
}

// Available always reports true.
func (NoOpReranker) Available(_ context.Context) bool { return true }

// LLMReranker scores query-document pairs with the completion model in
// JSON mode.
type LLMReranker struct {
	client llm.Client
}

var _ Reranker = (*LLMReranker)(nil)

// NewLLMReranker wraps a completion client as a reranker.
func NewLLMReranker(client llm.Client) *LLMReranker {
	return &LLMReranker{client: client}
}

const rerankPromptHeader = `Score each document's relevance to the query on a 0.0 to 1.0 scale.
Respond with JSON only: {"scores": [<one number per document, in order>]}

Query: %s

Documents:
`

// Rerank asks the model for one score per document. A malformed or
// short response fails the whole pass; the caller falls back to the
// fused order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, rerankPromptHeader, query)
	for i, doc := range documents {
		fmt.Fprintf(&prompt, "[%d] %s\n", i+1, truncate(doc, 800))
	}

	raw, err := r.client.Complete(ctx, prompt.String(), llm.Params{
		MaxTokens:   256,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, errors.NewIntegrationError("reranker", err)
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, errors.NewDataParsingError("parse rerank response", err)
	}
	if len(parsed.Scores) < len(documents) {
		return nil, errors.NewDataParsingError(
			fmt.Sprintf("rerank returned %d scores for %d documents", len(parsed.Scores), len(documents)), nil)
	}

	results := make([]RerankResult, len(documents))
	for i := range documents {
		score := parsed.Scores[i]
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		results[i] = RerankResult{Index: i, Score: score}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	slog.Debug("rerank pass complete", slog.Int("documents", len(documents)))
	return results, nil
}

// Available reports true; failures of the underlying model surface as
// errors from Rerank and the caller keeps the fused order.
func (r *LLMReranker) Available(_ context.Context) bool {
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
