package search

import (
	"sort"

	"github.com/resync-ops/resync/internal/store"
)

// fusedEntry accumulates per-leg scores for one chunk before the
// weighted combination.
type fusedEntry struct {
	result Result
	hasVec bool
	hasKey bool
	rawVec float64
	rawKey float64
}

// Fuse combines the two legs with min-max normalization and a weighted
// sum. Each leg's scores are normalized to [0,1] within the leg, a
// chunk missing from a leg contributes zero for that leg, and the
// fused score is weights.Vector*vec + weights.Keyword*key.
//
// Ties break toward chunks present in both legs, then by ChunkID.
func Fuse(vec []store.SearchResult, keyword []store.BM25Hit, weights Weights, limit int) []Result {
	if len(vec) == 0 && len(keyword) == 0 {
		return nil
	}

	entries := make(map[string]*fusedEntry, len(vec)+len(keyword))

	for _, r := range vec {
		entries[r.ChunkID] = &fusedEntry{
			result: Result{
				DocumentID: r.DocumentID,
				ChunkID:    r.ChunkID,
				Content:    r.Content,
				Metadata:   r.Metadata,
			},
			hasVec: true,
			rawVec: r.Similarity,
		}
	}

	for _, h := range keyword {
		e, ok := entries[h.ChunkID]
		if !ok {
			e = &fusedEntry{result: Result{
				DocumentID: h.DocumentID,
				ChunkID:    h.ChunkID,
				Content:    h.Content,
				Metadata:   h.Metadata,
			}}
			entries[h.ChunkID] = e
		}
		e.hasKey = true
		e.rawKey = h.Score
	}

	normalizeLeg(entries, func(e *fusedEntry) (bool, float64) { return e.hasVec, e.rawVec },
		func(e *fusedEntry, v float64) { e.result.VectorScore = v })
	normalizeLeg(entries, func(e *fusedEntry) (bool, float64) { return e.hasKey, e.rawKey },
		func(e *fusedEntry, v float64) { e.result.KeywordScore = v })

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		e.result.Score = weights.Vector*e.result.VectorScore + weights.Keyword*e.result.KeywordScore
		results = append(results, e.result)
	}

	inBoth := func(r Result) bool { return r.VectorScore > 0 && r.KeywordScore > 0 }
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		bi, bj := inBoth(results[i]), inBoth(results[j])
		if bi != bj {
			return bi
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalizeLeg min-max normalizes one leg's raw scores across the
// entries that have it. A single-result leg normalizes to 1; a leg
// whose scores are all equal does too.
func normalizeLeg(entries map[string]*fusedEntry, get func(*fusedEntry) (bool, float64), set func(*fusedEntry, float64)) {
	lo, hi := 0.0, 0.0
	first := true
	for _, e := range entries {
		ok, raw := get(e)
		if !ok {
			continue
		}
		if first {
			lo, hi = raw, raw
			first = false
			continue
		}
		if raw < lo {
			lo = raw
		}
		if raw > hi {
			hi = raw
		}
	}
	if first {
		return // leg empty
	}

	span := hi - lo
	for _, e := range entries {
		ok, raw := get(e)
		if !ok {
			continue
		}
		if span == 0 {
			set(e, 1)
		} else {
			set(e, (raw-lo)/span)
		}
	}
}
