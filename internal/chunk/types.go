// Package chunk splits ingested documents into retrievable units.
// Four strategies are available: fixed token windows, structure-aware
// markdown sectioning (the default), a TWS-optimized variant that
// lifts identifiers into metadata, and semantic grouping by embedding
// similarity.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/store"
)

// Chunk size defaults.
const (
	DefaultMaxChunkTokens = 512
	DefaultOverlapTokens  = 64
	tokensPerChar         = 4 // rough: 4 chars per token
)

// Strategy names accepted by ByName.
const (
	StrategyFixedSize      = "fixed_size"
	StrategyStructureAware = "structure_aware"
	StrategyTWSOptimized   = "tws_optimized"
	StrategySemantic       = "semantic"
)

// Document is the chunkers' input: one logical document plus the
// metadata seed every produced chunk inherits.
type Document struct {
	DocumentID string
	Title      string
	Content    string
	Metadata   store.ChunkMetadata
}

// Chunker splits a document into chunks.
type Chunker interface {
	// Name returns the strategy name.
	Name() string

	// Chunk splits the document. Chunk ids are the document id plus a
	// zero-padded ordinal; every chunk carries contextualized content
	// and a fingerprint of its raw content.
	Chunk(ctx context.Context, doc *Document) ([]*store.Chunk, error)
}

// Embedder is the slice of the embedding capability the semantic
// strategy needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ByName returns the chunker for a configured strategy name. The
// semantic strategy needs an embedder; passing nil for it is an error.
func ByName(name string, embedder Embedder) (Chunker, error) {
	switch name {
	case StrategyFixedSize:
		return NewFixedSize(0, 0), nil
	case StrategyStructureAware, "":
		return NewStructureAware(0), nil
	case StrategyTWSOptimized:
		return NewTWSOptimized(0), nil
	case StrategySemantic:
		if embedder == nil {
			return nil, errors.NewValidationError("semantic chunking needs an embedder", nil)
		}
		return NewSemantic(embedder, 0), nil
	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unknown chunking strategy %q", name), nil)
	}
}

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return len(text) / tokensPerChar
}

// Fingerprint hashes content with runs of whitespace collapsed, so
// reflowed text keeps its identity across re-ingestion.
func Fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// chunkID builds the ordinal chunk id within a document.
func chunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", docID, ordinal)
}

// contextualize prefixes content with the document title and section
// path. The prefixed form is what gets embedded; retrieval quality on
// short sections depends on it.
func contextualize(doc *Document, sectionPath, content string) string {
	var parts []string
	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if sectionPath != "" {
		parts = append(parts, sectionPath)
	}
	if len(parts) == 0 {
		return content
	}
	return strings.Join(parts, " > ") + "\n\n" + content
}

// build assembles one chunk with the shared bookkeeping applied.
func build(doc *Document, ordinal int, sectionPath string, parents []string, content string) *store.Chunk {
	meta := doc.Metadata
	meta.SectionPath = sectionPath
	meta.ParentHeaders = parents
	meta.Title = doc.Title
	meta.TokenCount = EstimateTokens(content)
	if meta.ChunkType == "" {
		meta.ChunkType = "text"
	}

	return &store.Chunk{
		DocumentID:     doc.DocumentID,
		ChunkID:        chunkID(doc.DocumentID, ordinal),
		Content:        content,
		Contextualized: contextualize(doc, sectionPath, content),
		SHA256:         Fingerprint(content),
		Metadata:       meta,
	}
}

func validateDoc(doc *Document) error {
	if doc == nil || doc.DocumentID == "" {
		return errors.NewValidationError("document needs an id", nil)
	}
	return nil
}
