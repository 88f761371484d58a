package audit

import (
	"context"
	"log/slog"

	"github.com/resync-ops/resync/internal/lock"
)

// Reviewer applies human decisions to queued records. Each decision
// runs under the record's distributed lock so two operators reviewing
// the same id from different instances cannot interleave.
type Reviewer struct {
	queue *Queue
	locks *lock.Manager
}

// NewReviewer wires the review surface over the queue and lock manager.
func NewReviewer(queue *Queue, locks *lock.Manager) *Reviewer {
	return &Reviewer{queue: queue, locks: locks}
}

// Decide approves or rejects one record. The lock key is derived from
// the record id; a held lock fails the decision with LockUnavailable
// instead of waiting.
func (r *Reviewer) Decide(ctx context.Context, id string, to Status, reviewer string) error {
	lease, err := r.locks.Acquire(ctx, "memory:"+id)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			slog.Warn("review lock release failed",
				slog.String("id", id), slog.Any("error", err))
		}
	}()

	// The record is re-read inside UpdateStatus while the lock is held,
	// so the pending check sees any decision that won the race.
	return r.queue.UpdateStatus(ctx, id, to, reviewer)
}
