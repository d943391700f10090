package networkgrpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "psharp.network.Network"

// handler is the subset of behavior the generated-code-free ServiceDesc
// below dispatches into.
type handler interface {
	CreateRemote(ctx context.Context, req *CreateRemoteRequest) (*CreateRemoteReply, error)
	SendRemote(ctx context.Context, req *SendRemoteRequest) (*SendRemoteReply, error)
}

func createRemoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CreateRemoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.CreateRemote(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CreateRemote"}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return h.CreateRemote(ctx, r.(*CreateRemoteRequest))
	})
}

func sendRemoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SendRemoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.SendRemote(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendRemote"}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return h.SendRemote(ctx, r.(*SendRemoteRequest))
	})
}

// serviceDesc is the hand-built equivalent of what protoc-gen-go-grpc would
// emit from a Network service with CreateRemote/SendRemote unary RPCs.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRemote", Handler: createRemoteHandler},
		{MethodName: "SendRemote", Handler: sendRemoteHandler},
	},
	Metadata: "psharp/network.proto",
}
