// Package metadata is a key/value store for per-installation state: device
// id, stored credentials and the last server sync timestamp.
package metadata

import (
	"context"
	"time"
)

const (
	KeyDeviceID     = "device_id"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyLastSyncAt   = "last_sync_timestamp"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// DeviceID returns the installation id, generating it on first use.
	DeviceID(ctx context.Context) (string, error)

	// Tokens returns the stored access and refresh tokens ("" if absent).
	Tokens(ctx context.Context) (access, refresh string, err error)
	SetTokens(ctx context.Context, access, refresh string) error

	// LastSyncAt is the server-issued sync_timestamp of the last completed
	// round. It is informational and never used as a pull cursor.
	LastSyncAt(ctx context.Context) (time.Time, error)
	SetLastSyncAt(ctx context.Context, ts time.Time) error
}
