package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/session"
)

// Extractor pulls durable facts and procedures out of a finished
// conversation with the completion model.
type Extractor struct {
	client        llm.Client
	model         string
	minConfidence float64
}

// NewExtractor creates an extractor. minConfidence drops extractions
// the model itself is unsure about.
func NewExtractor(client llm.Client, model string, minConfidence float64) *Extractor {
	return &Extractor{client: client, model: model, minConfidence: minConfidence}
}

const extractPrompt = `Extract durable facts and procedures about this TWS environment
from the conversation below. Only include things worth remembering across
conversations: environment facts, job ownership, recovery procedures,
operator preferences. Skip anything session-specific.

Respond with JSON only:
{"memories": [{"kind": "declarative"|"procedural", "category": "...", "content": "...", "confidence": 0.0-1.0, "source_turns": [1]}]}
Categories: declarative memories are "preference", "fact", or "context";
procedural memories are "workflow", "habit", or "rule".
source_turns are the 1-based turn numbers the memory came from.
Return {"memories": []} if nothing is worth keeping.

Conversation:
%s`

// extraction is the model's response schema.
type extraction struct {
	Memories []struct {
		Kind        string  `json:"kind"`
		Category    string  `json:"category"`
		Content     string  `json:"content"`
		Confidence  float64 `json:"confidence"`
		SourceTurns []int   `json:"source_turns"`
	} `json:"memories"`
}

// Extract runs extraction over a session transcript. Entries that fail
// schema validation or fall below the confidence floor are dropped,
// not fatal.
func (x *Extractor) Extract(ctx context.Context, s *session.Session) ([]*Entry, error) {
	transcript := s.ContextForPrompt(0)
	if transcript == "" {
		return nil, nil
	}

	raw, err := x.client.Complete(ctx, fmt.Sprintf(extractPrompt, transcript), llm.Params{
		MaxTokens:   1024,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, errors.NewIntegrationError("memory extraction", err)
	}

	var parsed extraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, errors.NewDataParsingError("parse extraction response", err)
	}

	now := time.Now().UTC()
	var entries []*Entry
	for _, m := range parsed.Memories {
		kind := Kind(m.Kind)
		if !kind.Valid() || m.Content == "" {
			slog.Warn("dropping malformed extraction",
				slog.String("kind", m.Kind),
				slog.String("session", s.ID))
			continue
		}
		if m.Confidence < x.minConfidence {
			continue
		}
		category := Category(m.Category)
		if !category.ValidFor(kind) {
			// A mislabeled category loses the label, not the memory.
			slog.Warn("dropping extraction category",
				slog.String("category", m.Category),
				slog.String("kind", m.Kind))
			category = ""
		}
		entries = append(entries, &Entry{
			UserID:       s.UserID,
			Kind:         kind,
			Category:     category,
			Content:      m.Content,
			Confidence:   m.Confidence,
			Verification: VerificationUnverified,
			Hash:         ContentHash(m.Content),
			Provenance: Provenance{
				SessionID:   s.ID,
				SourceTurns: m.SourceTurns,
				ExtractedAt: now,
				Model:       x.model,
			},
		})
	}
	return entries, nil
}
