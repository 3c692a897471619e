// Package passesv1 declares the onepass.v1.Passes gRPC service over well-known protobuf messages.
package passesv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "onepass.v1.Passes"

// Full method names.
const (
	GetPassMethod     = "/" + ServiceName + "/GetPass"
	EnsurePassMethod  = "/" + ServiceName + "/EnsurePass"
	RevokePassMethod  = "/" + ServiceName + "/RevokePass"
	MarkScannedMethod = "/" + ServiceName + "/MarkScanned"
	WatchPassMethod   = "/" + ServiceName + "/WatchPass"
)

// PassesServer is implemented by the API handlers.
type PassesServer interface {
	GetPass(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	EnsurePass(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RevokePass(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	MarkScanned(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	WatchPass(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

func unary[Req, Res any](fullMethod string, call func(PassesServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PassesServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PassesServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchPassHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PassesServer).WatchPass(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc registers PassesServer on a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PassesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPass", Handler: unary(GetPassMethod, PassesServer.GetPass)},
		{MethodName: "EnsurePass", Handler: unary(EnsurePassMethod, PassesServer.EnsurePass)},
		{MethodName: "RevokePass", Handler: unary(RevokePassMethod, PassesServer.RevokePass)},
		{MethodName: "MarkScanned", Handler: unary(MarkScannedMethod, PassesServer.MarkScanned)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchPass", Handler: watchPassHandler, ServerStreams: true},
	},
}

// RegisterPassesServer registers srv with s.
func RegisterPassesServer(s grpc.ServiceRegistrar, srv PassesServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// PassesClient calls onepass.v1.Passes.
type PassesClient struct {
	cc grpc.ClientConnInterface
}

// NewPassesClient wraps cc.
func NewPassesClient(cc grpc.ClientConnInterface) *PassesClient {
	return &PassesClient{cc: cc}
}

// GetPass returns the caller's stored pass; the response is empty when there is none.
func (c *PassesClient) GetPass(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetPassMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsurePass returns the caller's valid pass, provisioning one when needed.
func (c *PassesClient) EnsurePass(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EnsurePassMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokePass revokes the caller's own pass; in carries the "reason".
func (c *PassesClient) RevokePass(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, RevokePassMethod, in, new(emptypb.Empty), opts...)
}

// MarkScanned records the caller scanning the pass named by in ("uid", "signature").
func (c *PassesClient) MarkScanned(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MarkScannedMethod, in, new(emptypb.Empty), opts...)
}

// WatchPass opens the server stream; Recv returns io.EOF when the server ends it.
func (c *PassesClient) WatchPass(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchPassMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
