// Package records stores the server copy of synchronized entities.
package records

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/server/models"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type Repository interface {
	// Get returns the record, tombstones included, and locks it until the
	// surrounding transaction ends. Absent records yield common.ErrorNotFound.
	Get(ctx context.Context, t syncapi.EntityType, id string) (*models.Record, error)

	// Insert stores a new record. It reports false when a record with the
	// same key already exists.
	Insert(ctx context.Context, r *models.Record) (bool, error)

	// Update overwrites payload, version, updated_at and the deleted flag.
	Update(ctx context.Context, r *models.Record) error

	// ChangedSince lists the user's records of type t updated after since,
	// oldest first. A limit <= 0 means no limit.
	ChangedSince(ctx context.Context, userID string, t syncapi.EntityType, since time.Time, limit int) ([]*models.Record, error)
}
