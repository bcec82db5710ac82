// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/wichigo/Motium-sub012/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh
// tokens. Implementations persist only a hash of the token.
type Repository interface {
	// Create stores a new refresh token for userID valid until expires.
	Create(ctx context.Context, userID string, token string, expires time.Time) error

	// Find looks up a refresh token by its opaque token string and returns its
	// metadata, locking it until the surrounding transaction ends.
	// Implementations return common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a non-existent
	// token is not an error.
	Delete(ctx context.Context, token string) error
}
