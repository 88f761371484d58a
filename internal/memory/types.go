// Package memory implements long-term operator memory: facts and
// procedures extracted from conversations, stored with provenance and
// embeddings, and retrieved either on demand (pull) or proactively
// when a new query is similar enough (push).
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind separates what a memory is.
type Kind string

const (
	// KindDeclarative is a fact ("AWSBH001 belongs to the payroll stream").
	KindDeclarative Kind = "declarative"

	// KindProcedural is a how-to ("restart AWSBH001 by releasing HOLD first").
	KindProcedural Kind = "procedural"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	return k == KindDeclarative || k == KindProcedural
}

// Category refines a kind. Declarative memories are preferences,
// facts, or context; procedural memories are workflows, habits, or
// rules.
type Category string

const (
	CategoryPreference Category = "preference"
	CategoryFact       Category = "fact"
	CategoryContext    Category = "context"
	CategoryWorkflow   Category = "workflow"
	CategoryHabit      Category = "habit"
	CategoryRule       Category = "rule"
)

// ValidFor reports whether the category belongs to the kind. Empty is
// always acceptable; extraction does not have to categorize.
func (c Category) ValidFor(k Kind) bool {
	switch c {
	case "":
		return true
	case CategoryPreference, CategoryFact, CategoryContext:
		return k == KindDeclarative
	case CategoryWorkflow, CategoryHabit, CategoryRule:
		return k == KindProcedural
	}
	return false
}

// Verification is the operator review state of a memory. Rejected
// memories never surface in retrieval but stay stored for audit.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
	VerificationConfirmed  Verification = "confirmed"
	VerificationRejected   Verification = "rejected"
)

// Provenance records where a memory came from. SourceTurns are the
// 1-based turn numbers of the conversation that produced it.
type Provenance struct {
	SessionID   string    `json:"session_id"`
	SourceTurns []int     `json:"source_turns,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
	Model       string    `json:"model,omitempty"`
}

// Entry is one stored memory.
type Entry struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Kind         Kind         `json:"kind"`
	Category     Category     `json:"category,omitempty"`
	Content      string       `json:"content"`
	Confidence   float64      `json:"confidence"`
	Verification Verification `json:"verification_status"`
	Provenance   Provenance   `json:"provenance"`
	CreatedAt    time.Time    `json:"created_at"`

	// Hash deduplicates near-identical extractions per user.
	Hash string `json:"hash"`

	Embedding []float32 `json:"-"`
}

// ContentHash normalizes content and hashes it for deduplication.
func ContentHash(content string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Hit is a retrieved memory with its similarity to the query.
type Hit struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// Filter narrows pull retrieval. Zero values mean no constraint.
type Filter struct {
	Category      Category `json:"category,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
}
