package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

func (s *GRPCServer) Ping(ctx context.Context, req *syncapi.PingRequest) (*syncapi.PingResponse, error) {

	return &syncapi.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *syncapi.RefreshTokenRequest) (*syncapi.RefreshTokenResponse, error) {

	tokens, err := s.tokens.RefreshToken(ctx, req.RefreshToken)

	if err != nil {
		switch {
		case errors.Is(err, common.ErrRefreshTokenExpired):
			return nil, status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
		case errors.Is(err, common.ErrInvalidToken):
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		s.logger.Error(ctx, "refresh token failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return &syncapi.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {

	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing user")
	}

	resp, err := s.sync.SyncChanges(ctx, userID, req)

	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		}
		s.logger.Error(ctx, "sync failed", "user_id", userID, "error", err)
		return nil, status.Error(codes.Unavailable, "temporarily unavailable")
	}

	s.logger.Info(ctx, "Synced", "user_id", userID, "pushed", len(req.Push), "pulled_types", len(resp.PullResults))
	return resp, nil

}
