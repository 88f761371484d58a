package chunk

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/resync-ops/resync/internal/store"
)

// defaultSimilarityThreshold keeps adjacent sentences together when
// their embeddings agree at least this much.
const defaultSimilarityThreshold = 0.55

// Semantic groups adjacent sentences whose embeddings are similar, so
// chunk boundaries fall where the topic shifts instead of at a size
// limit. The most expensive strategy: one embedding call per document.
type Semantic struct {
	embedder  Embedder
	threshold float64
	maxTokens int
}

// Verify interface implementation at compile time.
var _ Chunker = (*Semantic)(nil)

var sentenceBoundary = regexp.MustCompile(`(?m)([.!?])\s+`)

// NewSemantic creates the semantic chunker. threshold <= 0 uses the
// default.
func NewSemantic(embedder Embedder, threshold float64) *Semantic {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	return &Semantic{
		embedder:  embedder,
		threshold: threshold,
		maxTokens: DefaultMaxChunkTokens,
	}
}

func (c *Semantic) Name() string { return StrategySemantic }

func (c *Semantic) Chunk(ctx context.Context, doc *Document) ([]*store.Chunk, error) {
	if err := validateDoc(doc); err != nil {
		return nil, err
	}
	sentences := splitSentences(doc.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []*store.Chunk{build(doc, 0, "", nil, sentences[0])}, nil
	}

	vecs, err := c.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}

	var chunks []*store.Chunk
	var group []string
	groupTokens := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		chunks = append(chunks, build(doc, len(chunks), "", nil, strings.Join(group, " ")))
		group = group[:0]
		groupTokens = 0
	}

	for i, sentence := range sentences {
		tokens := EstimateTokens(sentence)
		boundary := i > 0 && cosine(vecs[i-1], vecs[i]) < c.threshold
		if boundary || groupTokens+tokens > c.maxTokens {
			flush()
		}
		group = append(group, sentence)
		groupTokens += tokens
	}
	flush()

	return chunks, nil
}

func splitSentences(content string) []string {
	marked := sentenceBoundary.ReplaceAllString(content, "$1\x00")
	var out []string
	for _, s := range strings.Split(marked, "\x00") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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
