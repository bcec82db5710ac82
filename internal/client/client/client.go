package client

import (
	"context"

	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// Client is the remote side of the sync engine.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// TokenSource supplies the access token attached to every call and renews
// it when the server reports expiry.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}
