// Package idempotency remembers the verdict given to each push item so that
// a retried item is answered with the same result instead of being applied
// twice.
package idempotency

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type Repository interface {
	// Find returns the stored result for the user's key, or
	// common.ErrorNotFound.
	Find(ctx context.Context, userID, key string) (*syncapi.PushResult, error)

	// Save stores res under the user's key. Saving an existing key keeps the
	// first result.
	Save(ctx context.Context, userID, key string, res syncapi.PushResult, now time.Time) error

	// Purge removes results stored before cutoff and reports how many went.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
