// Package deferred remembers remote changes that a pull could not apply
// because the local row had an unacknowledged edit. The pull cursor moves
// past them; once the edit resolves, the oldest one tells the next pull
// where to start again.
package deferred

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
)

type Repository interface {
	// Defer records a skipped change. A later change of the same entity
	// replaces the earlier one.
	Defer(ctx context.Context, t models.EntityType, entityID string, version int64, updatedAt time.Time) error

	// ReplayFrom returns the oldest updated_at among the deferred changes
	// whose entity no longer has a pending edit and is still older than the
	// change. ok is false when there is nothing to fetch again.
	ReplayFrom(ctx context.Context, t models.EntityType) (from time.Time, ok bool, err error)

	// Settle drops the deferred changes that the local row has caught up
	// with: no pending edit and a version at least as new.
	Settle(ctx context.Context, t models.EntityType) (int64, error)

	// Count returns the number of deferred changes of t.
	Count(ctx context.Context, t models.EntityType) (int, error)
}
