// Package lock implements Redis-backed distributed locks used to
// serialize audit approvals and reindex runs across instances.
// Acquisition is SET NX PX; release is a Lua compare-and-delete so a
// holder can never release a lock that expired and was re-acquired.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resync-ops/resync/internal/errors"
)

// KeyPrefix namespaces every lock key in Redis.
const KeyPrefix = "lock:"

// releaseScript deletes the key only when the stored token matches.
// go-redis runs it by SHA and falls back to EVAL on NOSCRIPT.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Manager acquires and releases distributed locks.
type Manager struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewManager creates a lock manager. ttl is the lifetime of each
// acquired lock.
func NewManager(client redis.UniversalClient, ttl time.Duration) *Manager {
	return &Manager{client: client, ttl: ttl}
}

// Lease is a held lock. Only the holder of the lease token can
// release it.
type Lease struct {
	manager *Manager
	key     string
	Token   string
}

// Acquire takes the lock or fails immediately with LockUnavailable.
// There is no queueing; callers retry with backoff if they want to
// wait. The stored value is the bare lease token, nothing else, so
// any Redis client can inspect or compare it.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.NewEmptyKeyError("lock key")
	}

	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, KeyPrefix+key, token, m.ttl).Result()
	if err != nil {
		return nil, errors.NewConnectionError("acquire lock", err)
	}
	if !ok {
		return nil, errors.NewLockUnavailableError(key)
	}

	slog.Debug("lock acquired", slog.String("key", key))
	return &Lease{manager: m, key: key, Token: token}, nil
}

// Release gives the lock back. Releasing a lock that already expired
// (and may be held by someone else now) is a no-op, logged at warn.
func (l *Lease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.manager.client, []string{KeyPrefix + l.key}, l.Token).Int()
	if err != nil {
		return errors.NewConnectionError("release lock", err)
	}
	if deleted == 0 {
		slog.Warn("lock already expired or held by another owner",
			slog.String("key", l.key))
	}
	return nil
}

// ForceRelease deletes a lock regardless of holder. Operator escape
// hatch for wedged locks.
func (m *Manager) ForceRelease(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.NewEmptyKeyError("lock key")
	}
	deleted, err := m.client.Del(ctx, KeyPrefix+key).Result()
	if err != nil {
		return false, errors.NewConnectionError("force release lock", err)
	}
	return deleted > 0, nil
}

// IsLocked reports whether the key is currently held.
func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, KeyPrefix+key).Result()
	if err != nil {
		return false, errors.NewConnectionError("check lock", err)
	}
	return n > 0, nil
}

// CleanupStale scans for locks that lost their expiry or are within
// maxAge of expiring and deletes them. Returns how many were removed.
func (m *Manager) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	var removed int
	iter := m.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if m.staleLock(ctx, key, maxAge) {
			if err := m.client.Del(ctx, key).Err(); err != nil {
				return removed, errors.NewConnectionError("delete stale lock", err)
			}
			removed++
			slog.Info("removed stale lock", slog.String("key", key))
		}
	}
	if err := iter.Err(); err != nil {
		return removed, errors.NewConnectionError("scan locks", err)
	}
	return removed, nil
}

// staleLock decides from the TTL alone. -1 means the key lost its
// expiry and no holder will ever release it. A key expiring within
// maxAge is close enough to dead that deleting it early is harmless.
// A key that vanished between scan and check is not ours to touch.
func (m *Manager) staleLock(ctx context.Context, key string, maxAge time.Duration) bool {
	ttl, err := m.client.TTL(ctx, key).Result()
	if err != nil {
		return false
	}
	if ttl == -1 {
		return true
	}
	if ttl < 0 {
		return false
	}
	return ttl <= maxAge
}
