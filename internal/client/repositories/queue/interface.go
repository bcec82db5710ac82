package queue

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
)

// BatchQuery selects the operations eligible for a push batch.
type BatchQuery struct {
	Limit int
	// Now filters out operations still waiting for their backoff to elapse.
	Now time.Time
	// CreatedBefore bounds a round to operations that existed when it started.
	CreatedBefore time.Time
	// MaxRetries excludes operations that reached the retry ceiling.
	MaxRetries int
}

type Repository interface {
	// Enqueue stores op, atomically replacing any queued operation for the
	// same entity. The replaced operation's BaseVersion is kept and the
	// action is coalesced (CREATE then UPDATE stays CREATE; anything then
	// DELETE becomes DELETE).
	Enqueue(ctx context.Context, op *models.PendingOperation) error

	// DequeueBatch returns ready operations ordered by priority (desc) then
	// creation time (asc). Operations stay queued until resolved.
	DequeueBatch(ctx context.Context, q BatchQuery) ([]*models.PendingOperation, error)

	// MarkSucceeded deletes the operation. It reports false when the id is
	// gone, which means a newer mutation superseded it.
	MarkSucceeded(ctx context.Context, opID string) (bool, error)

	// MarkFailed records a transient failure and schedules the next attempt.
	MarkFailed(ctx context.Context, opID string, reason string, now, nextAttemptAt time.Time) error

	// Freeze records a permanent failure. The operation is kept for operators
	// and excluded from automatic batches.
	Freeze(ctx context.Context, opID string, reason string, now time.Time) error

	// Rebase moves the queued operation of an entity onto a new server
	// version after an older operation for it was resolved.
	Rebase(ctx context.Context, t models.EntityType, entityID string, baseVersion int64) error

	Get(ctx context.Context, opID string) (*models.PendingOperation, error)
	GetByEntity(ctx context.Context, t models.EntityType, entityID string) (*models.PendingOperation, error)
	Count(ctx context.Context) (int, error)

	// Failed lists frozen operations and those with RetryCount >= maxRetries.
	Failed(ctx context.Context, maxRetries int) ([]*models.PendingOperation, error)

	// Requeue clears the retry bookkeeping of a failed operation.
	Requeue(ctx context.Context, opID string) error

	// Discard drops an operation without pushing it.
	Discard(ctx context.Context, opID string) error
}
