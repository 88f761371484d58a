package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client), mr
}

func rewriteRecord(t *testing.T, q *Queue, rec *Record) {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, q.client.HSet(context.Background(), dataKey, rec.ID, raw).Err())
}

func rerunRecord(id string) *Record {
	return &Record{
		ID:          id,
		Action:      "rerun_job",
		Target:      "AWSBH001",
		RequestedBy: "operator1",
		Confidence:  0.4,
		Reason:      "confidence below quarantine threshold",
	}
}

func TestAddAndGetPending(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	added, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Add(ctx, rerunRecord("a2"))
	require.NoError(t, err)
	assert.True(t, added)

	pending, err := q.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].ID)
	assert.Equal(t, "a2", pending[1].ID)
	assert.Equal(t, StatusPending, pending[0].Status)
	assert.False(t, pending[0].CreatedAt.IsZero())
}

func TestGetPendingHonorsLimit(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := q.Add(ctx, rerunRecord(id))
		require.NoError(t, err)
	}

	pending, err := q.GetPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].ID)
	assert.Equal(t, "a2", pending[1].ID)

	// A zero or negative limit asks for nothing and gets nothing.
	pending, err = q.GetPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = q.GetPending(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecordWireShape(t *testing.T) {
	rec := rerunRecord("a1")
	rec.UserQuery = "rerun AWSBH001"
	rec.AgentResponse = "I queued the rerun for approval."
	rec.Status = StatusPending
	rec.CreatedAt = time.Now().UTC()

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	for _, key := range []string{
		"memory_id", "user_query", "agent_response",
		"ia_audit_reason", "ia_audit_confidence", "status", "created_at",
	} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "a1", m["memory_id"])
	assert.NotContains(t, m, "id")
	assert.NotContains(t, m, "reviewed_at")

	now := time.Now().UTC()
	rec.ReviewedAt = &now
	raw, err = json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "reviewed_at")
}

func TestAddDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	added, err := q.Add(ctx, rerunRecord("dup"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Add(ctx, rerunRecord("dup"))
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.QueueLength(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAddAssignsID(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	rec := rerunRecord("")
	added, err := q.Add(ctx, rec)
	require.NoError(t, err)
	assert.True(t, added)
	assert.NotEmpty(t, rec.ID)
}

func TestAddRejectsEmptyAction(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Add(context.Background(), &Record{Target: "AWSBH001"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestApproveFlow(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)

	approved, err := q.IsApproved(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, approved)

	require.NoError(t, q.UpdateStatus(ctx, "a1", StatusApproved, "supervisor"))

	approved, err = q.IsApproved(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, approved)

	rec, err := q.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	assert.Equal(t, "supervisor", rec.ReviewedBy)
	require.NotNil(t, rec.ReviewedAt)

	// Reviewed records leave the arrival list.
	n, err := q.QueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := q.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUpdateStatusOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)
	require.NoError(t, q.UpdateStatus(ctx, "a1", StatusRejected, "supervisor"))

	err = q.UpdateStatus(ctx, "a1", StatusApproved, "supervisor")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateStatusSameDecisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)
	require.NoError(t, q.UpdateStatus(ctx, "a1", StatusApproved, "supervisor"))

	// A retried approval lands on the same state without error.
	require.NoError(t, q.UpdateStatus(ctx, "a1", StatusApproved, "supervisor"))

	rec, err := q.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)

	// Flipping the decision afterwards still fails.
	err = q.UpdateStatus(ctx, "a1", StatusRejected, "supervisor")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateStatusInvalidTarget(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)

	err = q.UpdateStatus(ctx, "a1", StatusPending, "supervisor")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateStatusMissingRecord(t *testing.T) {
	q, _ := newTestQueue(t)

	err := q.UpdateStatus(context.Background(), "ghost", StatusApproved, "x")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetPendingSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("good"))
	require.NoError(t, err)

	// Simulate a torn write: id in queue and status but garbage data.
	_, err = mr.Push(queueKey, "torn")
	require.NoError(t, err)
	mr.HSet(statusKey, "torn", string(StatusPending))
	mr.HSet(dataKey, "torn", "{not json")

	pending, err := q.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "good", pending[0].ID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Add(ctx, rerunRecord(id))
		require.NoError(t, err)
	}
	require.NoError(t, q.UpdateStatus(ctx, "a", StatusApproved, "r"))
	require.NoError(t, q.UpdateStatus(ctx, "b", StatusRejected, "r"))

	m, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Pending)
	assert.EqualValues(t, 1, m.Approved)
	assert.EqualValues(t, 1, m.Rejected)
	assert.EqualValues(t, 3, m.Total)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Add(ctx, rerunRecord("a1"))
	require.NoError(t, err)
	require.NoError(t, q.Delete(ctx, "a1"))

	_, err = q.Get(ctx, "a1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCleanupProcessed(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for _, id := range []string{"old", "recent", "pending"} {
		_, err := q.Add(ctx, rerunRecord(id))
		require.NoError(t, err)
	}
	require.NoError(t, q.UpdateStatus(ctx, "old", StatusApproved, "r"))
	require.NoError(t, q.UpdateStatus(ctx, "recent", StatusApproved, "r"))

	// Age the first review far past retention.
	rec, err := q.Get(ctx, "old")
	require.NoError(t, err)
	past := time.Now().UTC().Add(-48 * time.Hour)
	rec.ReviewedAt = &past
	rewriteRecord(t, q, rec)

	removed, err := q.CleanupProcessed(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = q.Get(ctx, "old")
	assert.True(t, errors.IsNotFound(err))
	_, err = q.Get(ctx, "recent")
	assert.NoError(t, err)
	_, err = q.Get(ctx, "pending")
	assert.NoError(t, err)
}
