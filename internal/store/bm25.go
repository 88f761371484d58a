package store

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/resync-ops/resync/internal/errors"
)

// BM25 scoring constants.
const (
	// BM25K1 is the term-frequency saturation parameter.
	BM25K1 = 1.5
	// BM25B is the document-length normalization parameter.
	BM25B = 0.75

	// Metadata field boosts. A query token that matches one of these
	// fields multiplies that token's contribution.
	BoostJobName     = 4.0
	BoostErrorCode   = 3.5
	BoostWorkstation = 3.0

	// DefaultCorpusLimit caps how many chunks a rebuild reads.
	DefaultCorpusLimit = 100_000
)

// BM25Hit is a single keyword-search result. Content and metadata are
// carried so fusion can surface keyword-only hits without a second
// store read.
type BM25Hit struct {
	// ChunkIndex is the position of the chunk in the built corpus.
	ChunkIndex int
	ChunkID    string
	DocumentID string
	Content    string
	Metadata   ChunkMetadata
	Score      float64
}

// posting records one document occurrence of a term.
type posting struct {
	doc int
	tf  int
}

// docEntry is the per-document state needed at scoring time.
type docEntry struct {
	chunkID    string
	documentID string
	content    string
	metadata   ChunkMetadata
	length     int

	// fieldBoost maps a token to its metadata-field boost. Only
	// tokens present in job_names, error_codes, or workstations
	// appear; everything else scores with boost 1.
	fieldBoost map[string]float64
}

// invertedIndex is one immutable build of the keyword index. Rebuilds
// construct a fresh instance off to the side and swap it in, so
// readers never see a partially built index.
type invertedIndex struct {
	docs     []docEntry
	postings map[string][]posting
	avgLen   float64
}

// BM25Index is an in-memory keyword index over the chunk corpus.
// It reads the corpus from the VectorStore, builds lazily on first
// search, and rebuilds copy-on-swap.
type BM25Index struct {
	store       VectorStore
	collection  string
	corpusLimit int

	mu  sync.RWMutex // guards idx swap
	idx *invertedIndex

	buildMu sync.Mutex // serializes rebuilds
}

// NewBM25Index creates an index over the given collection. The index
// is empty until the first Search or an explicit Rebuild.
func NewBM25Index(vs VectorStore, collection string) *BM25Index {
	return &BM25Index{
		store:       vs,
		collection:  collection,
		corpusLimit: DefaultCorpusLimit,
	}
}

// Rebuild reads the corpus and swaps in a freshly built index.
// Rebuilds are globally serialized; concurrent searches keep using
// the previous index until the swap.
func (b *BM25Index) Rebuild(ctx context.Context) error {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	chunks, err := b.store.GetAllDocuments(ctx, b.collection, b.corpusLimit)
	if err != nil {
		return errors.NewQueryError("bm25 rebuild: read corpus", err)
	}

	idx := buildIndex(chunks)

	b.mu.Lock()
	b.idx = idx
	b.mu.Unlock()

	slog.Debug("bm25 index rebuilt",
		slog.String("collection", b.collection),
		slog.Int("documents", len(idx.docs)),
		slog.Int("terms", len(idx.postings)))
	return nil
}

// Search scores the corpus against the query and returns the top k
// hits in descending score order. An empty query returns no hits.
// The first search triggers a lazy build.
func (b *BM25Index) Search(ctx context.Context, query string, topK int) ([]BM25Hit, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}

	idx, err := b.current(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.docs) == 0 {
		return nil, nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	scores := make(map[int]float64)
	n := float64(len(idx.docs))

	for _, term := range terms {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			doc := idx.docs[p.doc]
			tf := float64(p.tf)
			norm := 1 - BM25B + BM25B*float64(doc.length)/idx.avgLen
			contribution := idf * tf * (BM25K1 + 1) / (tf + BM25K1*norm)
			if boost, ok := doc.fieldBoost[term]; ok {
				contribution *= boost
			}
			scores[p.doc] += contribution
		}
	}

	hits := make([]BM25Hit, 0, len(scores))
	for docIdx, score := range scores {
		doc := idx.docs[docIdx]
		hits = append(hits, BM25Hit{
			ChunkIndex: docIdx,
			ChunkID:    doc.chunkID,
			DocumentID: doc.documentID,
			Content:    doc.content,
			Metadata:   doc.metadata,
			Score:      score,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DocCount returns the number of documents in the current index, or
// zero when the index has not been built yet.
func (b *BM25Index) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.idx == nil {
		return 0
	}
	return len(b.idx.docs)
}

// current returns the active index, building it first if needed.
func (b *BM25Index) current(ctx context.Context) (*invertedIndex, error) {
	b.mu.RLock()
	idx := b.idx
	b.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	if err := b.Rebuild(ctx); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idx, nil
}

// buildIndex constructs an inverted index over the chunks.
func buildIndex(chunks []*Chunk) *invertedIndex {
	idx := &invertedIndex{
		docs:     make([]docEntry, 0, len(chunks)),
		postings: make(map[string][]posting),
	}

	var totalLen int
	for i, c := range chunks {
		tokens := Tokenize(c.Content)
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: count})
		}

		idx.docs = append(idx.docs, docEntry{
			chunkID:    c.ChunkID,
			documentID: c.DocumentID,
			content:    c.Content,
			metadata:   c.Metadata,
			length:     len(tokens),
			fieldBoost: fieldBoosts(c.Metadata),
		})
	}

	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
	if idx.avgLen == 0 {
		idx.avgLen = 1
	}
	return idx
}

// fieldBoosts maps the tokens of the boostable metadata fields to
// their boost factor. When a token appears in multiple fields, the
// highest boost wins.
func fieldBoosts(m ChunkMetadata) map[string]float64 {
	if len(m.JobNames) == 0 && len(m.ErrorCodes) == 0 && len(m.Workstations) == 0 {
		return nil
	}

	boosts := make(map[string]float64)
	apply := func(values []string, boost float64) {
		for _, v := range values {
			for _, token := range fieldValueTokens(v) {
				if boost > boosts[token] {
					boosts[token] = boost
				}
			}
		}
	}
	apply(m.JobNames, BoostJobName)
	apply(m.ErrorCodes, BoostErrorCode)
	apply(m.Workstations, BoostWorkstation)
	return boosts
}

// fieldValueTokens expands one metadata value into every token form a
// query could arrive as. Stored error codes use the canonical rc_N
// form, so the compact rcN alias is added explicitly.
func fieldValueTokens(value string) []string {
	lower := strings.ToLower(strings.TrimSpace(value))
	if lower == "" {
		return nil
	}

	tokens := []string{lower}
	tokens = append(tokens, Tokenize(value)...)
	if rest, ok := strings.CutPrefix(lower, "rc_"); ok {
		tokens = append(tokens, "rc"+rest)
	}
	return tokens
}
