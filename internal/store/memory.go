package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/resync-ops/resync/internal/errors"
)

// MemoryVectorStore is the in-memory VectorStore used by tests and
// local development. It mirrors the production two-phase search: an
// HNSW graph over sign-binarized embeddings supplies Hamming-ordered
// candidates, which are rescored by exact cosine similarity over the
// full-precision embeddings.
type MemoryVectorStore struct {
	dims int

	mu          sync.RWMutex
	collections map[string]*memCollection
	closed      bool
}

// memCollection holds one collection's rows and its candidate graph.
type memCollection struct {
	graph   *hnsw.Graph[uint64]
	rows    map[uint64]*Chunk
	keyByID map[string]uint64 // document_id + "\x00" + chunk_id -> key
	bySHA   map[string]map[uint64]struct{}
	nextKey uint64
}

// Verify interface implementation at compile time.
var _ VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates an empty in-memory store for vectors
// of the given dimension.
func NewMemoryVectorStore(dims int) *MemoryVectorStore {
	return &MemoryVectorStore{
		dims:        dims,
		collections: make(map[string]*memCollection),
	}
}

func newMemCollection() *memCollection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.Ml = 0.25
	graph.EfSearch = 64
	return &memCollection{
		graph:   graph,
		rows:    make(map[uint64]*Chunk),
		keyByID: make(map[string]uint64),
		bySHA:   make(map[string]map[uint64]struct{}),
	}
}

func rowKey(documentID, chunkID string) string {
	return documentID + "\x00" + chunkID
}

// binarize projects a vector onto its signs. Sign vectors share a
// norm, so cosine distance between them orders exactly like Hamming
// distance on the binary quantization.
func binarize(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		if x >= 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// cosineSimilarity computes the exact cosine similarity of two vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Upsert inserts or replaces chunks keyed by (document_id, chunk_id).
func (s *MemoryVectorStore) Upsert(_ context.Context, collection string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) != s.dims {
			return errors.NewDimensionMismatchError(s.dims, len(c.Embedding))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.NewConnectionError("memory vector store is closed", nil)
	}

	col, ok := s.collections[collection]
	if !ok {
		col = newMemCollection()
		s.collections[collection] = col
	}

	for _, c := range chunks {
		id := rowKey(c.DocumentID, c.ChunkID)
		if oldKey, exists := col.keyByID[id]; exists {
			col.dropRow(oldKey)
		}

		key := col.nextKey
		col.nextKey++

		// Store a copy so callers can reuse their chunk structs.
		row := *c
		col.rows[key] = &row
		col.keyByID[id] = key
		if row.SHA256 != "" {
			set, ok := col.bySHA[row.SHA256]
			if !ok {
				set = make(map[uint64]struct{})
				col.bySHA[row.SHA256] = set
			}
			set[key] = struct{}{}
		}

		col.graph.Add(hnsw.MakeNode(key, binarize(row.Embedding)))
	}
	return nil
}

// dropRow removes a row's mappings. The graph node is orphaned rather
// than deleted (lazy deletion); orphans are filtered at search time.
func (c *memCollection) dropRow(key uint64) {
	row, ok := c.rows[key]
	if !ok {
		return
	}
	delete(c.rows, key)
	delete(c.keyByID, rowKey(row.DocumentID, row.ChunkID))
	if set, ok := c.bySHA[row.SHA256]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(c.bySHA, row.SHA256)
		}
	}
}

// Search runs the two-phase search: Hamming-ordered candidates from
// the binary graph, exact cosine rescore, top k.
func (s *MemoryVectorStore) Search(_ context.Context, collection string, query []float32, k int, filters Filters) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, errors.NewDimensionMismatchError(s.dims, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.NewConnectionError("memory vector store is closed", nil)
	}

	col, ok := s.collections[collection]
	if !ok || col.graph.Len() == 0 {
		return nil, nil
	}

	// Candidate phase. Filters shrink the candidate set, so widen the
	// fanout when any are present.
	fanout := candidateLimit(k)
	if len(filters) > 0 {
		fanout *= 4
	}
	nodes := col.graph.Search(binarize(query), fanout)

	// Rescore phase.
	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		row, ok := col.rows[node.Key]
		if !ok {
			continue // lazily deleted
		}
		if len(filters) > 0 && !matchesFilters(row, filters) {
			continue
		}
		results = append(results, SearchResult{
			DocumentID: row.DocumentID,
			ChunkID:    row.ChunkID,
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: cosineSimilarity(query, row.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ExistsBySHA256 reports whether any stored chunk carries the hash.
func (s *MemoryVectorStore) ExistsBySHA256(_ context.Context, collection, sha256 string) (bool, error) {
	if sha256 == "" {
		return false, errors.NewEmptyKeyError("sha256")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errors.NewConnectionError("memory vector store is closed", nil)
	}

	col, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	set, ok := col.bySHA[sha256]
	return ok && len(set) > 0, nil
}

// DeleteByDocumentID removes every chunk of the document and returns
// how many were removed.
func (s *MemoryVectorStore) DeleteByDocumentID(_ context.Context, collection, documentID string) (int64, error) {
	if documentID == "" {
		return 0, errors.NewEmptyKeyError("document_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.NewConnectionError("memory vector store is closed", nil)
	}

	col, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}

	var keys []uint64
	for key, row := range col.rows {
		if row.DocumentID == documentID {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		col.dropRow(key)
	}
	return int64(len(keys)), nil
}

// GetAllDocuments returns up to limit chunks in insertion order.
func (s *MemoryVectorStore) GetAllDocuments(_ context.Context, collection string, limit int) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.NewConnectionError("memory vector store is closed", nil)
	}

	col, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}

	keys := make([]uint64, 0, len(col.rows))
	for key := range col.rows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	chunks := make([]*Chunk, 0, len(keys))
	for _, key := range keys {
		row := *col.rows[key]
		chunks = append(chunks, &row)
	}
	return chunks, nil
}

// Count returns the number of chunks in the collection.
func (s *MemoryVectorStore) Count(_ context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.NewConnectionError("memory vector store is closed", nil)
	}
	col, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return int64(len(col.rows)), nil
}

// Ping reports whether the store is usable.
func (s *MemoryVectorStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.NewConnectionError("memory vector store is closed", nil)
	}
	return nil
}

// Close releases the store. Subsequent operations fail.
func (s *MemoryVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}
