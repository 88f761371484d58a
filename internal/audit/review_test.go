package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/lock"
)

func newTestReviewer(t *testing.T) (*Reviewer, *Queue, *lock.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue := NewQueue(client)
	locks := lock.NewManager(client, time.Minute)
	return NewReviewer(queue, locks), queue, locks
}

func TestReviewerDecideApproves(t *testing.T) {
	ctx := context.Background()
	r, q, locks := newTestReviewer(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)

	require.NoError(t, r.Decide(ctx, "a1", StatusApproved, "supervisor"))

	rec, err := q.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	assert.Equal(t, "supervisor", rec.ReviewedBy)

	// The lock is gone once the decision lands.
	held, err := locks.IsLocked(ctx, "memory:a1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestReviewerDecideFailsWhileRecordLocked(t *testing.T) {
	ctx := context.Background()
	r, q, locks := newTestReviewer(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)

	lease, err := locks.Acquire(ctx, "memory:a1")
	require.NoError(t, err)
	defer func() { _ = lease.Release(ctx) }()

	err = r.Decide(ctx, "a1", StatusRejected, "supervisor")
	require.Error(t, err)
	assert.True(t, errors.IsLockUnavailable(err))

	// The record is untouched while someone else holds the lock.
	rec, err := q.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestReviewerDecideReleasesLockOnFailure(t *testing.T) {
	ctx := context.Background()
	r, _, locks := newTestReviewer(t)

	err := r.Decide(ctx, "ghost", StatusApproved, "supervisor")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	held, err := locks.IsLocked(ctx, "memory:ghost")
	require.NoError(t, err)
	assert.False(t, held)
}
