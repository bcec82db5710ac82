// Package services contains application services for the sync client.
// This file defines the credential provider: it hands the transport a valid
// access token, renews it with the stored refresh token, and persists the
// pair in local metadata.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-retry"

	"github.com/wichigo/Motium-sub012/internal/client/client"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/metadata"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// AuthService defines credential operations for the sync engine.
//
// Contract:
//   - AccessToken: return a token to attach to the next call, renewing it
//     first when it is about to expire.
//   - Refresh: exchange the stored refresh token for a new pair.
//   - SignIn: store a token pair issued out of band.
//   - SignOut: forget stored credentials.
//   - Ping: check server liveness.
//
// Refresh failures that cannot be fixed by retrying surface as
// common.ErrReconnectRequired.
type AuthService interface {
	client.TokenSource
	SignIn(ctx context.Context, access, refresh string) error
	SignOut(ctx context.Context) error
	Ping(ctx context.Context) error
}

type AuthOptions struct {
	Clock timex.Clock
	// RefreshSkew renews an access token that expires within this window.
	RefreshSkew time.Duration
	// RefreshRetries bounds retries of a refresh that failed on transport.
	RefreshRetries uint64
	RefreshBackoff time.Duration
	Logger         logging.Logger
}

type authService struct {
	client client.Client
	meta   metadata.Repository
	opts   AuthOptions

	// serializes refreshes so concurrent callers do not burn the same
	// refresh token twice
	mu sync.Mutex
}

// NewAuthService constructs an AuthService bound to the given API client and
// metadata store.
func NewAuthService(c client.Client, meta metadata.Repository, opts AuthOptions) AuthService {
	if opts.Clock == nil {
		opts.Clock = timex.SystemClock{}
	}
	if opts.RefreshBackoff <= 0 {
		opts.RefreshBackoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	return &authService{client: c, meta: meta, opts: opts}
}

func (a *authService) AccessToken(ctx context.Context) (string, error) {
	access, refresh, err := a.meta.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if access == "" && refresh == "" {
		return "", common.ErrReconnectRequired
	}
	if access != "" && !a.expiring(access) {
		return access, nil
	}
	if refresh == "" {
		return access, nil
	}
	return a.Refresh(ctx)
}

// expiring reports whether token carries an exp claim inside the skew
// window. Tokens that are not JWTs are treated as opaque and never expire
// locally; the server remains the judge.
func (a *authService) expiring(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !a.opts.Clock.Now().Add(a.opts.RefreshSkew).Before(claims.ExpiresAt.Time)
}

func (a *authService) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, refresh, err := a.meta.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", common.ErrReconnectRequired
	}

	var access, next string
	b := retry.WithMaxRetries(a.opts.RefreshRetries, retry.NewExponential(a.opts.RefreshBackoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		var rerr error
		access, next, rerr = a.client.RefreshToken(ctx, refresh)
		if errors.Is(rerr, client.ErrUnavailable) {
			return retry.RetryableError(rerr)
		}
		return rerr
	})
	if err != nil {
		a.opts.Logger.Warn(ctx, "token refresh failed", "error", err)
		if errors.Is(err, client.ErrUnavailable) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", common.ErrReconnectRequired, err)
	}

	if next == "" {
		next = refresh
	}
	if err := a.meta.SetTokens(ctx, access, next); err != nil {
		return "", fmt.Errorf("saving tokens: %w", err)
	}

	a.opts.Logger.Info(ctx, "access token refreshed")
	return access, nil
}

func (a *authService) SignIn(ctx context.Context, access, refresh string) error {
	if access == "" && refresh == "" {
		return fmt.Errorf("%w: empty credentials", common.ErrValidation)
	}
	return a.meta.SetTokens(ctx, access, refresh)
}

func (a *authService) SignOut(ctx context.Context) error {
	return a.meta.SetTokens(ctx, "", "")
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
