// Package watermarks stores the per-entity-type pull cursors. A cursor only
// ever holds a server-issued updated_at; zero means "fetch everything".
package watermarks

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, t models.EntityType) (time.Time, error)

	// All returns the cursor of every type in types, zero for unknown ones.
	All(ctx context.Context, types []models.EntityType) (map[models.EntityType]time.Time, error)

	// Advance moves the cursor forward to ts; an older ts is ignored.
	Advance(ctx context.Context, t models.EntityType, ts time.Time) error

	// Reset rewinds the cursor to zero so the next pull re-fetches the type.
	Reset(ctx context.Context, t models.EntityType) error
}
