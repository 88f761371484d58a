package chunk

import (
	"context"
	"strings"

	"github.com/resync-ops/resync/internal/store"
)

// FixedSize chunks by token windows with overlap, ignoring document
// structure. Cheapest strategy; the fallback for content with no
// usable markup.
type FixedSize struct {
	maxTokens int
	overlap   int
}

// Verify interface implementation at compile time.
var _ Chunker = (*FixedSize)(nil)

// NewFixedSize creates a fixed-window chunker. Zero values take the
// defaults; overlap is clamped below the window size.
func NewFixedSize(maxTokens, overlap int) *FixedSize {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if overlap <= 0 {
		overlap = DefaultOverlapTokens
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 4
	}
	return &FixedSize{maxTokens: maxTokens, overlap: overlap}
}

func (c *FixedSize) Name() string { return StrategyFixedSize }

// Chunk splits on word boundaries into windows of maxTokens with the
// tail of each window repeated at the head of the next.
func (c *FixedSize) Chunk(_ context.Context, doc *Document) ([]*store.Chunk, error) {
	if err := validateDoc(doc); err != nil {
		return nil, err
	}
	words := strings.Fields(doc.Content)
	if len(words) == 0 {
		return nil, nil
	}

	// Words per window, from the chars-per-token estimate and an
	// average word length of ~5 chars plus the separator.
	wordsPerWindow := c.maxTokens * tokensPerChar / 6
	if wordsPerWindow < 1 {
		wordsPerWindow = 1
	}
	overlapWords := c.overlap * tokensPerChar / 6

	var chunks []*store.Chunk
	for start := 0; start < len(words); {
		end := start + wordsPerWindow
		if end > len(words) {
			end = len(words)
		}
		content := strings.Join(words[start:end], " ")
		chunks = append(chunks, build(doc, len(chunks), "", nil, content))

		if end == len(words) {
			break
		}
		start = end - overlapWords
	}
	return chunks, nil
}
