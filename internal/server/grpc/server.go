// Package grpc exposes the sync service over gRPC.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/server/services"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// Syncer applies one sync exchange for an authenticated user.
type Syncer interface {
	SyncChanges(ctx context.Context, userID string, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error)
}

// Tokens verifies access tokens and rotates refresh tokens.
type Tokens interface {
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserID(accessToken string) (string, error)
}

type GRPCServer struct {
	address string
	sync    Syncer
	tokens  Tokens
	logger  logging.Logger

	// ready receives the bound address once the listener is up.
	ready chan string
}

func NewGRPCServer(a string, l logging.Logger, sync Syncer, tokens Tokens) *GRPCServer {
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		sync:    sync,
		tokens:  tokens,
		ready:   make(chan string, 1),
	}
}

// Ready yields the address the server listens on once Run has bound it.
func (s *GRPCServer) Ready() <-chan string {
	return s.ready
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	// registers service
	syncapi.RegisterSyncServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())
	s.ready <- listen.Addr().String()

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
