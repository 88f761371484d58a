package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resync-ops/resync/internal/errors"
)

// keyPrefix namespaces session keys in Redis.
const keyPrefix = "session:"

// Store persists sessions. Put refreshes the TTL, so active sessions
// slide forward and idle ones expire.
type Store interface {
	// Get loads a session. NotFound when absent or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Put saves a session and resets its TTL.
	Put(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting an absent session is fine.
	Delete(ctx context.Context, id string) error

	// List returns the ids of live sessions.
	List(ctx context.Context) ([]string, error)
}

// RedisStore keeps sessions in Redis with a TTL per key.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.NewEmptyKeyError("session id")
	}
	raw, err := r.client.Get(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, errors.NewConnectionError("load session", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, errors.NewDataParsingError("parse session", err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.NewEmptyKeyError("session id")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.InternalError("marshal session", err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID, raw, r.ttl).Err(); err != nil {
		return errors.NewConnectionError("save session", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.NewEmptyKeyError("session id")
	}
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.NewConnectionError("delete session", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.NewConnectionError("scan sessions", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryStore keeps sessions in a map with explicit expiry times.
// Used when Redis is not configured.
type MemoryStore struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	deadline map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		deadline: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.NewEmptyKeyError("session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || time.Now().After(m.deadline[id]) {
		delete(m.sessions, id)
		delete(m.deadline, id)
		return nil, errors.NewNotFoundError("session", id)
	}
	clone := *s
	return &clone, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.NewEmptyKeyError("session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.sessions[s.ID] = &clone
	m.deadline[s.ID] = time.Now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.NewEmptyKeyError("session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.deadline, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		if now.Before(m.deadline[id]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
