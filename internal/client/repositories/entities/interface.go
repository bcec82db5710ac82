package entities

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
)

// PullOutcome describes what ApplyPulledChange did with a remote row.
type PullOutcome int

const (
	PullApplied PullOutcome = iota
	// PullSkippedPending means the local row has an unacknowledged edit.
	PullSkippedPending
	// PullSkippedStale means the local row is already at a newer version.
	PullSkippedStale
)

func (o PullOutcome) String() string {
	switch o {
	case PullApplied:
		return "applied"
	case PullSkippedPending:
		return "skipped_pending"
	case PullSkippedStale:
		return "skipped_stale"
	}
	return "unknown"
}

// Repository stores the entities of one type.
type Repository interface {
	Type() models.EntityType

	// ApplyLocalMutation writes e.Payload/e.Deleted, bumps the version and
	// marks the row PENDING_UPLOAD. It returns the new and previous versions.
	ApplyLocalMutation(ctx context.Context, e *models.Entity, now time.Time) (newVersion, prevVersion int64, err error)

	// ApplyPulledChange upserts a server row unless the local row is pending
	// or newer.
	ApplyPulledChange(ctx context.Context, remote *models.Entity) (PullOutcome, error)

	// ResolveConflict accepts the server's version as authoritative.
	ResolveConflict(ctx context.Context, id string, serverVersion int64, serverUpdatedAt time.Time) error

	// MarkSynced records a successful push.
	MarkSynced(ctx context.Context, id string, serverVersion int64, serverUpdatedAt time.Time) error

	// Rebase sets the version to the server's without touching the sync
	// status, for rows that still carry a newer local edit.
	Rebase(ctx context.Context, id string, serverVersion int64) error

	Get(ctx context.Context, id string) (*models.Entity, error)
	// List returns the non-deleted rows.
	List(ctx context.Context) ([]*models.Entity, error)
	ListByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Entity, error)
}
