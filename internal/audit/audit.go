// Package audit implements the Redis-backed approval queue for write
// actions. Actions the agent is not confident enough to run land here
// and wait for a human decision.
//
// Three structures hold the queue: the audit:queue list carries
// pending ids in arrival order, the audit:status hash maps id to
// status, and the audit:data hash maps id to the serialized record.
// Writes go through pipelines; readers tolerate the gaps a torn write
// can leave.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resync-ops/resync/internal/errors"
)

// Redis key names.
const (
	queueKey  = "audit:queue"
	statusKey = "audit:status"
	dataKey   = "audit:data"
)

// Status is the review state of a queued action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Record is one queued write action. Confidence and Reason carry the
// ia_audit_* names on the wire for compatibility with the dashboards
// that read the queue directly.
type Record struct {
	ID            string            `json:"memory_id"`
	Action        string            `json:"action"`
	Target        string            `json:"target"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	RequestedBy   string            `json:"requested_by"`
	SessionID     string            `json:"session_id,omitempty"`
	UserQuery     string            `json:"user_query,omitempty"`
	AgentResponse string            `json:"agent_response,omitempty"`
	Confidence    float64           `json:"ia_audit_confidence"`
	Reason        string            `json:"ia_audit_reason,omitempty"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ReviewedAt    *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy    string            `json:"reviewed_by,omitempty"`
}

// Metrics summarizes the queue for the stats command.
type Metrics struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

// Queue is the audit queue client.
type Queue struct {
	client redis.UniversalClient
}

// NewQueue creates an audit queue over the given Redis client.
func NewQueue(client redis.UniversalClient) *Queue {
	return &Queue{client: client}
}

// Add enqueues an action for review. The record gets an id and pending
// status if it has none. Re-adding an id that is already tracked
// returns (false, nil) and changes nothing.
func (q *Queue) Add(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.Action == "" {
		return false, errors.NewValidationError("audit record needs an action", nil)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	exists, err := q.client.HExists(ctx, statusKey, rec.ID).Result()
	if err != nil {
		return false, errors.NewAuditError("check duplicate", err)
	}
	if exists {
		return false, nil
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return false, errors.NewAuditError("marshal record", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, queueKey, rec.ID)
	pipe.HSet(ctx, statusKey, rec.ID, string(rec.Status))
	pipe.HSet(ctx, dataKey, rec.ID, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.NewAuditError("enqueue record", err)
	}

	slog.Info("action queued for review",
		slog.String("id", rec.ID),
		slog.String("action", rec.Action),
		slog.String("target", rec.Target))
	return true, nil
}

// Get returns one record by id.
func (q *Queue) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, errors.NewEmptyKeyError("audit id")
	}
	raw, err := q.client.HGet(ctx, dataKey, id).Result()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError("audit record", id)
	}
	if err != nil {
		return nil, errors.NewAuditError("read record", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.NewDataParsingError("parse audit record", err)
	}
	return &rec, nil
}

// GetPending returns up to limit pending records in arrival order.
// limit <= 0 returns nothing. Ids whose data or status is missing or
// malformed are skipped with a warning rather than failing the listing.
func (q *Queue) GetPending(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := q.client.LRange(ctx, queueKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, errors.NewAuditError("read queue", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var pending []*Record
	for _, id := range ids {
		status, err := q.client.HGet(ctx, statusKey, id).Result()
		if err != nil || Status(status) != StatusPending {
			continue
		}
		raw, err := q.client.HGet(ctx, dataKey, id).Result()
		if err != nil {
			slog.Warn("audit id has no data, skipping", slog.String("id", id))
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("malformed audit record, skipping",
				slog.String("id", id), slog.Any("error", err))
			continue
		}
		pending = append(pending, &rec)
	}
	return pending, nil
}

// UpdateStatus reviews a record. Pending records move to approved or
// rejected; re-applying the decision a record already carries is a
// no-op apart from refreshed review stamps, so a retried approval does
// not fail. Flipping a reviewed record to the other decision is an
// error.
func (q *Queue) UpdateStatus(ctx context.Context, id string, to Status, reviewer string) error {
	if to != StatusApproved && to != StatusRejected {
		return errors.NewValidationError("status must be approved or rejected", nil)
	}

	rec, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending && rec.Status != to {
		return errors.NewValidationError(
			"record already reviewed with a different decision", nil).
			WithDetail("id", id).
			WithDetail("status", string(rec.Status))
	}

	now := time.Now().UTC()
	rec.Status = to
	rec.ReviewedAt = &now
	rec.ReviewedBy = reviewer

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.NewAuditError("marshal reviewed record", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, statusKey, id, string(to))
	pipe.HSet(ctx, dataKey, id, raw)
	pipe.LRem(ctx, queueKey, 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewAuditError("update status", err)
	}

	slog.Info("audit record reviewed",
		slog.String("id", id),
		slog.String("status", string(to)),
		slog.String("reviewer", reviewer))
	return nil
}

// IsApproved reports whether the record has been approved.
func (q *Queue) IsApproved(ctx context.Context, id string) (bool, error) {
	status, err := q.client.HGet(ctx, statusKey, id).Result()
	if err == redis.Nil {
		return false, errors.NewNotFoundError("audit record", id)
	}
	if err != nil {
		return false, errors.NewAuditError("read status", err)
	}
	return Status(status) == StatusApproved, nil
}

// Delete removes a record from all three structures.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.NewEmptyKeyError("audit id")
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, queueKey, 0, id)
	pipe.HDel(ctx, statusKey, id)
	pipe.HDel(ctx, dataKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewAuditError("delete record", err)
	}
	return nil
}

// QueueLength returns the number of ids waiting in the arrival list.
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, errors.NewAuditError("queue length", err)
	}
	return n, nil
}

// Stats counts records by status.
func (q *Queue) Stats(ctx context.Context) (*Metrics, error) {
	statuses, err := q.client.HGetAll(ctx, statusKey).Result()
	if err != nil {
		return nil, errors.NewAuditError("read statuses", err)
	}

	var m Metrics
	for _, s := range statuses {
		switch Status(s) {
		case StatusPending:
			m.Pending++
		case StatusApproved:
			m.Approved++
		case StatusRejected:
			m.Rejected++
		}
		m.Total++
	}
	return &m, nil
}

// CleanupProcessed deletes approved and rejected records reviewed more
// than retention ago. Returns how many were removed.
func (q *Queue) CleanupProcessed(ctx context.Context, retention time.Duration) (int, error) {
	records, err := q.client.HGetAll(ctx, dataKey).Result()
	if err != nil {
		return 0, errors.NewAuditError("read records", err)
	}

	cutoff := time.Now().UTC().Add(-retention)
	var removed int
	for id, raw := range records {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Status == StatusPending || rec.ReviewedAt == nil {
			continue
		}
		if rec.ReviewedAt.Before(cutoff) {
			if err := q.Delete(ctx, id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if removed > 0 {
		slog.Info("audit cleanup complete", slog.Int("removed", removed))
	}
	return removed, nil
}
