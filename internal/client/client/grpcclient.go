package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// Options tune the gRPC client. Zero values fall back to defaults.
type Options struct {
	DeviceID       string
	RequestTimeout time.Duration
	// BreakerFailures is the number of consecutive transport failures that
	// opens the circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before probing.
	BreakerCooldown time.Duration
	Logger          logging.Logger
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      syncapi.SyncServiceClient
	tokens      TokenSource
	breaker     *gobreaker.CircuitBreaker
	deviceID    string
	timeout     time.Duration
}

func withAccessToken(ctx context.Context, token, deviceID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if deviceID != "" {
		md.Set(common.DeviceIDHeaderName, deviceID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	// the refresh call authenticates with the refresh token in its body
	if method == syncapi.SyncService_RefreshToken_FullMethodName || s.tokens == nil {
		return invoker(withAccessToken(ctx, "", s.deviceID), method, req, reply, cc, opts...)
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, token, s.deviceID), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}

	token, rerr := s.tokens.Refresh(ctx)
	if rerr != nil {
		return err
	}

	return invoker(withAccessToken(ctx, token, s.deviceID), method, req, reply, cc, opts...)
}

func NewGRPCClient(endpointURL string, opts Options) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL: endpointURL,
		deviceID:    opts.DeviceID,
		timeout:     opts.RequestTimeout,
		breaker:     newBreaker(endpointURL, opts),
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func newBreaker(name string, opts Options) *gobreaker.CircuitBreaker {
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop{}
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// only transport trouble counts against the server
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state changed", "endpoint", name, "from", from.String(), "to", to.String())
		},
	})
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = syncapi.NewSyncServiceClient(conn)
	return nil
}

// UseTokenSource installs the credential provider consulted by every call.
// It must be called before the client is shared between goroutines.
func (s *GRPCClient) UseTokenSource(ts TokenSource) {
	s.tokens = ts
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.execute(func() (any, error) {
		return s.client.Ping(ctx, &syncapi.PingRequest{})
	})
	if err != nil {
		return err
	}

	if resp.(*syncapi.PingResponse).Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.execute(func() (any, error) {
		return s.client.SyncChanges(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	out := resp.(*syncapi.SyncChangesResponse)
	if len(out.PushResults) != len(req.Push) {
		return nil, fmt.Errorf("%w: %d push results for %d items", ErrUnavailable, len(out.PushResults), len(req.Push))
	}
	return out, nil
}

func (s *GRPCClient) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.RefreshToken(ctx, &syncapi.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", s.mapError(err)
	}
	return resp.AccessToken, resp.RefreshToken, nil
}

// execute runs fn through the circuit breaker and maps its error.
func (s *GRPCClient) execute(fn func() (any, error)) (any, error) {
	call := func() (any, error) {
		v, err := fn()
		return v, s.mapError(err)
	}
	if s.breaker == nil {
		return call()
	}

	v, err := s.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}

func (s *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
