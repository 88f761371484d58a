// Package store provides chunk persistence and retrieval: a vector
// store with two-phase ANN search (PostgreSQL/pgvector in production,
// in-memory HNSW for tests and development) and an in-memory BM25
// keyword index with TWS-aware tokenization.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// SourceTier ranks the provenance of a document source.
type SourceTier string

const (
	TierVerified  SourceTier = "verified"
	TierOfficial  SourceTier = "official"
	TierCurated   SourceTier = "curated"
	TierCommunity SourceTier = "community"
	TierGenerated SourceTier = "generated"
)

// ChunkMetadata is the structured metadata carried by every chunk.
// Fields are explicit rather than a map so producers and consumers
// agree on the schema at compile time.
type ChunkMetadata struct {
	DocType       string     `json:"doc_type,omitempty"`
	SourceTier    SourceTier `json:"source_tier,omitempty"`
	AuthorityTier int        `json:"authority_tier,omitempty"` // 1 (highest) .. 5
	IsDeprecated  bool       `json:"is_deprecated,omitempty"`
	LastUpdated   time.Time  `json:"last_updated,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	Environment   string     `json:"environment,omitempty"`
	ChunkType     string     `json:"chunk_type,omitempty"`
	SectionPath   string     `json:"section_path,omitempty"`
	ParentHeaders []string   `json:"parent_headers,omitempty"`
	ErrorCodes    []string   `json:"error_codes,omitempty"`
	JobNames      []string   `json:"job_names,omitempty"`
	Workstations  []string   `json:"workstations,omitempty"`
	Commands      []string   `json:"commands,omitempty"`
	Title         string     `json:"title,omitempty"`
	TokenCount    int        `json:"token_count,omitempty"`
}

// MarshalJSONB serializes the metadata for the jsonb column.
func (m ChunkMetadata) MarshalJSONB() ([]byte, error) {
	return json.Marshal(m)
}

// Chunk is the unit of retrieval. ChunkID is document_id plus ordinal;
// SHA256 uniquely identifies the normalized content (idempotent
// ingestion hinges on it).
type Chunk struct {
	DocumentID string
	ChunkID    string
	Content    string

	// Contextualized is the content prefixed with document title and
	// section path. It is what gets embedded; Content is what gets
	// shown and keyword-indexed.
	Contextualized string

	Embedding []float32
	SHA256    string
	Metadata  ChunkMetadata
}

// EmbedText returns the text to embed: the contextualized form when
// present, the raw content otherwise.
func (c *Chunk) EmbedText() string {
	if c.Contextualized != "" {
		return c.Contextualized
	}
	return c.Content
}

// SearchResult is a scored chunk returned by vector search.
type SearchResult struct {
	DocumentID string        `json:"document_id"`
	ChunkID    string        `json:"chunk_id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// Filters restricts a search to rows whose metadata fields (or sha256)
// equal the given values. Keys are the metadata JSON field names
// ("doc_type", "platform", ...) or the literal "sha256".
type Filters map[string]string

// VectorStore persists chunk embeddings and performs two-phase
// approximate nearest-neighbor search: a cheap binary Hamming
// candidate phase followed by an exact cosine rescore.
type VectorStore interface {
	// Upsert inserts or replaces chunks. The conflict key is
	// (collection, document_id, chunk_id); on conflict content,
	// embedding, metadata, and sha256 are replaced and updated_at is
	// stamped. Embedding dimension is validated before any write.
	Upsert(ctx context.Context, collection string, chunks []*Chunk) error

	// Search returns the top k chunks by cosine similarity to the
	// query vector. Filters are applied in the candidate phase.
	Search(ctx context.Context, collection string, query []float32, k int, filters Filters) ([]SearchResult, error)

	// ExistsBySHA256 reports whether a chunk with the given content
	// hash is already stored. Used to short-circuit re-ingestion.
	ExistsBySHA256(ctx context.Context, collection, sha256 string) (bool, error)

	// DeleteByDocumentID removes all chunks of a document.
	DeleteByDocumentID(ctx context.Context, collection, documentID string) (int64, error)

	// GetAllDocuments returns up to limit chunks from the collection.
	// The BM25 index rebuild reads the corpus through this.
	GetAllDocuments(ctx context.Context, collection string, limit int) ([]*Chunk, error)

	// Count returns the number of chunks in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// candidateLimit returns the candidate-phase fanout for a final limit
// of k: the rescore phase always sees at least 50 rows and at least
// ten times the requested result count.
func candidateLimit(k int) int {
	n := 10 * k
	if n < 50 {
		n = 50
	}
	return n
}

// matchesFilters reports whether a chunk satisfies every filter.
// Used by the in-memory store; the SQL store compiles filters into
// WHERE clauses instead.
func matchesFilters(c *Chunk, filters Filters) bool {
	for key, want := range filters {
		var got string
		switch key {
		case "sha256":
			got = c.SHA256
		case "doc_type":
			got = c.Metadata.DocType
		case "source_tier":
			got = string(c.Metadata.SourceTier)
		case "platform":
			got = c.Metadata.Platform
		case "environment":
			got = c.Metadata.Environment
		case "chunk_type":
			got = c.Metadata.ChunkType
		case "section_path":
			got = c.Metadata.SectionPath
		case "title":
			got = c.Metadata.Title
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}
