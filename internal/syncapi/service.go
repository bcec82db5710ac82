package syncapi

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "motium.sync.v1.SyncService"

	SyncService_SyncChanges_FullMethodName  = "/" + ServiceName + "/SyncChanges"
	SyncService_RefreshToken_FullMethodName = "/" + ServiceName + "/RefreshToken"
	SyncService_Ping_FullMethodName         = "/" + ServiceName + "/Ping"
)

// SyncServiceClient is the client API for SyncService.
type SyncServiceClient interface {
	SyncChanges(ctx context.Context, in *SyncChangesRequest, opts ...grpc.CallOption) (*SyncChangesResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type syncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) SyncServiceClient {
	return &syncServiceClient{cc}
}

func (c *syncServiceClient) SyncChanges(ctx context.Context, in *SyncChangesRequest, opts ...grpc.CallOption) (*SyncChangesResponse, error) {
	out := new(SyncChangesResponse)
	if err := c.cc.Invoke(ctx, SyncService_SyncChanges_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	out := new(RefreshTokenResponse)
	if err := c.cc.Invoke(ctx, SyncService_RefreshToken_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.cc.Invoke(ctx, SyncService_Ping_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// SyncServiceServer is the server API for SyncService.
type SyncServiceServer interface {
	SyncChanges(context.Context, *SyncChangesRequest) (*SyncChangesResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncService_ServiceDesc, srv)
}

func _SyncService_SyncChanges_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SyncChangesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServiceServer).SyncChanges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SyncService_SyncChanges_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServiceServer).SyncChanges(ctx, req.(*SyncChangesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SyncService_RefreshToken_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RefreshTokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServiceServer).RefreshToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SyncService_RefreshToken_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServiceServer).RefreshToken(ctx, req.(*RefreshTokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SyncService_Ping_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServiceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SyncService_Ping_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServiceServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SyncService_ServiceDesc is the grpc.ServiceDesc for SyncService.
var SyncService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SyncChanges", Handler: _SyncService_SyncChanges_Handler},
		{MethodName: "RefreshToken", Handler: _SyncService_RefreshToken_Handler},
		{MethodName: "Ping", Handler: _SyncService_Ping_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "motium/sync/v1/sync.proto",
}
