package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/wichigo/Motium-sub012/internal/client/client"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/metadata"
	"github.com/wichigo/Motium-sub012/internal/client/storage"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// ---- helpers ----

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setupMeta(t *testing.T) metadata.Repository {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return metadata.NewSQLiteRepository(db)
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

// ---- fake client ----

type fakeClient struct {
	refreshAccess  string
	refreshNext    string
	refreshErrs    []error
	refreshCalls   int
	lastRefreshArg string

	pingErr error
}

func (f *fakeClient) Close() error { return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeClient) SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	return nil, errors.New("not used")
}
func (f *fakeClient) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	f.refreshCalls++
	f.lastRefreshArg = refreshToken
	if len(f.refreshErrs) > 0 {
		err := f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
		return "", "", err
	}
	return f.refreshAccess, f.refreshNext, nil
}

var authNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAuth(fc *fakeClient, meta metadata.Repository) AuthService {
	return NewAuthService(fc, meta, AuthOptions{
		Clock:          fixedClock{authNow},
		RefreshSkew:    time.Minute,
		RefreshRetries: 2,
		RefreshBackoff: time.Millisecond,
	})
}

// ---- tests ----

func TestAccessToken_NoCredentials(t *testing.T) {
	a := newAuth(&fakeClient{}, setupMeta(t))
	_, err := a.AccessToken(context.Background())
	require.ErrorIs(t, err, common.ErrReconnectRequired)
}

func TestAccessToken_ValidTokenReturnedAsIs(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{}
	a := newAuth(fc, meta)

	tok := signed(t, authNow.Add(time.Hour))
	require.NoError(t, a.SignIn(ctx, tok, "R1"))

	got, err := a.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, tok, got)
	require.Zero(t, fc.refreshCalls)
}

func TestAccessToken_OpaqueTokenNeverRefreshedLocally(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{}
	a := newAuth(fc, meta)

	require.NoError(t, a.SignIn(ctx, "opaque", "R1"))
	got, err := a.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "opaque", got)
	require.Zero(t, fc.refreshCalls)
}

func TestAccessToken_ExpiringTokenIsRefreshed(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{refreshAccess: "A2", refreshNext: "R2"}
	a := newAuth(fc, meta)

	require.NoError(t, a.SignIn(ctx, signed(t, authNow.Add(30*time.Second)), "R1"))

	got, err := a.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "A2", got)
	require.Equal(t, "R1", fc.lastRefreshArg)

	access, refresh, err := meta.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, "A2", access)
	require.Equal(t, "R2", refresh)
}

func TestRefresh_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{
		refreshAccess: "A2",
		refreshErrs:   []error{client.ErrUnavailable, client.ErrUnavailable},
	}
	a := newAuth(fc, meta)
	require.NoError(t, a.SignIn(ctx, "A1", "R1"))

	got, err := a.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "A2", got)
	require.Equal(t, 3, fc.refreshCalls)

	// server did not rotate: the old refresh token is kept
	_, refresh, err := meta.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, "R1", refresh)
}

func TestRefresh_RejectedRequiresReconnect(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{refreshErrs: []error{client.ErrUnauthorized}}
	a := newAuth(fc, meta)
	require.NoError(t, a.SignIn(ctx, "A1", "R1"))

	_, err := a.Refresh(ctx)
	require.ErrorIs(t, err, common.ErrReconnectRequired)
	require.Equal(t, 1, fc.refreshCalls)
}

func TestRefresh_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{refreshErrs: []error{client.ErrUnavailable, client.ErrUnavailable, client.ErrUnavailable}}
	a := newAuth(fc, meta)
	require.NoError(t, a.SignIn(ctx, "A1", "R1"))

	_, err := a.Refresh(ctx)
	require.ErrorIs(t, err, client.ErrUnavailable)
	require.NotErrorIs(t, err, common.ErrReconnectRequired)
	require.Equal(t, 3, fc.refreshCalls)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	fc := &fakeClient{}
	a := newAuth(fc, meta)
	require.NoError(t, a.SignIn(ctx, "A1", ""))

	_, err := a.Refresh(ctx)
	require.ErrorIs(t, err, common.ErrReconnectRequired)
	require.Zero(t, fc.refreshCalls)
}

func TestSignInSignOut(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	a := newAuth(&fakeClient{}, meta)

	require.ErrorIs(t, a.SignIn(ctx, "", ""), common.ErrValidation)
	require.NoError(t, a.SignIn(ctx, "A", "R"))
	require.NoError(t, a.SignOut(ctx))

	_, err := a.AccessToken(ctx)
	require.ErrorIs(t, err, common.ErrReconnectRequired)
}

func TestPing_Proxies(t *testing.T) {
	fc := &fakeClient{pingErr: client.ErrUnavailable}
	a := newAuth(fc, setupMeta(t))
	require.ErrorIs(t, a.Ping(context.Background()), client.ErrUnavailable)
}
