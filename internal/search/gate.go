package search

// RerankGate decides whether a fused result set is confident enough to
// skip the cross-encoder pass. Reranking is expensive, so it only runs
// when the fusion looks uncertain.
type RerankGate struct {
	// LowScore triggers a rerank when the top fused score falls below it.
	LowScore float64

	// Margin triggers a rerank when the top two scores are closer than it.
	Margin float64

	// MaxCandidates caps how many results are handed to the reranker.
	MaxCandidates int
}

// DefaultRerankGate matches the documented retrieval defaults.
func DefaultRerankGate() RerankGate {
	return RerankGate{LowScore: 0.35, Margin: 0.05, MaxCandidates: 10}
}

// ShouldRerank reports whether the result set warrants a rerank pass.
// Empty sets never rerank; a single result reranks only on low score.
func (g RerankGate) ShouldRerank(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	if results[0].Score < g.LowScore {
		return true
	}
	if len(results) > 1 && results[0].Score-results[1].Score < g.Margin {
		return true
	}
	return false
}

// Candidates returns the slice of results the reranker should see.
func (g RerankGate) Candidates(results []Result) []Result {
	if g.MaxCandidates > 0 && len(results) > g.MaxCandidates {
		return results[:g.MaxCandidates]
	}
	return results
}
