package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resync-ops/resync/internal/errors"
)

// Store persists memories for retrieval by embedding similarity.
type Store interface {
	// Save stores an entry. A duplicate (same user and content hash)
	// returns (false, nil) and stores nothing.
	Save(ctx context.Context, e *Entry) (bool, error)

	// Search returns the user's memories most similar to the query
	// embedding, best first, at most k, narrowed by the filter.
	// Rejected memories never match.
	Search(ctx context.Context, userID string, query []float32, k int, f Filter) ([]Hit, error)

	// Get returns one entry by id.
	Get(ctx context.Context, id string) (*Entry, error)

	// Confirm marks an entry as operator-confirmed.
	Confirm(ctx context.Context, id string) error

	// Reject marks an entry as wrong. It drops out of retrieval but
	// stays stored for audit; ListByUser still returns it.
	Reject(ctx context.Context, id string) error

	// Delete removes one entry.
	Delete(ctx context.Context, id string) error

	// DeleteUserMemories removes everything stored for a user and
	// returns the count.
	DeleteUserMemories(ctx context.Context, userID string) (int64, error)

	// ListByUser returns a user's memories, newest first.
	ListByUser(ctx context.Context, userID string) ([]Entry, error)

	// Close releases resources.
	Close() error
}

// MemoryStore is the in-memory Store used by tests and Redis-less
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	byUser  map[string]map[string]string // userID -> hash -> entry id
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		byUser:  make(map[string]map[string]string),
	}
}

func (m *MemoryStore) Save(_ context.Context, e *Entry) (bool, error) {
	if err := validateEntry(e); err != nil {
		return false, err
	}
	if e.Hash == "" {
		e.Hash = ContentHash(e.Content)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Verification == "" {
		e.Verification = VerificationUnverified
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hashes, ok := m.byUser[e.UserID]
	if !ok {
		hashes = make(map[string]string)
		m.byUser[e.UserID] = hashes
	}
	if _, dup := hashes[e.Hash]; dup {
		return false, nil
	}

	clone := *e
	m.entries[e.ID] = &clone
	hashes[e.Hash] = e.ID
	return true, nil
}

func (m *MemoryStore) Search(_ context.Context, userID string, query []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, e := range m.entries {
		if e.UserID != userID || len(e.Embedding) == 0 {
			continue
		}
		if e.Verification == VerificationRejected {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if e.Confidence < f.MinConfidence {
			continue
		}
		hits = append(hits, Hit{Entry: *e, Similarity: cosine(query, e.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Entry.ID < hits[j].Entry.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("memory", id)
	}
	clone := *e
	return &clone, nil
}

func (m *MemoryStore) Confirm(_ context.Context, id string) error {
	return m.setVerification(id, VerificationConfirmed)
}

func (m *MemoryStore) Reject(_ context.Context, id string) error {
	return m.setVerification(id, VerificationRejected)
}

func (m *MemoryStore) setVerification(id string, v Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return errors.NewNotFoundError("memory", id)
	}
	e.Verification = v
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return errors.NewNotFoundError("memory", id)
	}
	delete(m.entries, id)
	if hashes, ok := m.byUser[e.UserID]; ok {
		delete(hashes, e.Hash)
	}
	return nil
}

func (m *MemoryStore) DeleteUserMemories(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, e := range m.entries {
		if e.UserID == userID {
			delete(m.entries, id)
			removed++
		}
	}
	delete(m.byUser, userID)
	return removed, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func validateEntry(e *Entry) error {
	if e == nil {
		return errors.NewValidationError("memory entry is nil", nil)
	}
	if e.UserID == "" {
		return errors.NewEmptyKeyError("user id")
	}
	if e.Content == "" {
		return errors.NewValidationError("memory content must not be empty", nil)
	}
	if !e.Kind.Valid() {
		return errors.NewValidationError("memory kind must be declarative or procedural", nil)
	}
	if !e.Category.ValidFor(e.Kind) {
		return errors.NewValidationError("memory category does not fit its kind", nil)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
