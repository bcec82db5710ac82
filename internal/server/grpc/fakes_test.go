package grpc

import (
	"context"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/server/services"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type fakeSyncer struct {
	gotUser string
	gotReq  *syncapi.SyncChangesRequest

	resp *syncapi.SyncChangesResponse
	err  error
}

func (f *fakeSyncer) SyncChanges(ctx context.Context, userID string, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	f.gotUser = userID
	f.gotReq = req
	return f.resp, f.err
}

// fakeTokens accepts "good" for user u1 and "old" as an expired token.
type fakeTokens struct {
	pair       *services.TokenPair
	refreshErr error
}

func (f *fakeTokens) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	return f.pair, f.refreshErr
}

func (f *fakeTokens) UserID(accessToken string) (string, error) {
	switch accessToken {
	case "good":
		return "u1", nil
	case "old":
		return "", common.ErrTokenExpired
	}
	return "", common.ErrInvalidToken
}

func newTestServer(s Syncer, t Tokens) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", nil, s, t)
}
