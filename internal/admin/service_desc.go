package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "office.admin.v1.PresenceAdmin"

const (
	listSessionsMethod  = "/" + ServiceName + "/ListSessions"
	countSessionsMethod = "/" + ServiceName + "/CountSessions"
	disconnectMethod    = "/" + ServiceName + "/Disconnect"
	revokeTokenMethod   = "/" + ServiceName + "/RevokeToken"
)

// PresenceAdminServer is the server API for the presence admin service.
// Messages are protobuf well-known types so no generated code is needed.
type PresenceAdminServer interface {
	ListSessions(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	CountSessions(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	Disconnect(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	RevokeToken(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// ServiceDesc describes PresenceAdmin for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PresenceAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: listSessionsHandler},
		{MethodName: "CountSessions", Handler: countSessionsHandler},
		{MethodName: "Disconnect", Handler: disconnectHandler},
		{MethodName: "RevokeToken", Handler: revokeTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "office/admin/v1/admin.proto",
}

// RegisterPresenceAdminServer registers srv on s.
func RegisterPresenceAdminServer(s grpc.ServiceRegistrar, srv PresenceAdminServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceAdminServer).ListSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listSessionsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceAdminServer).ListSessions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func countSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceAdminServer).CountSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: countSessionsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceAdminServer).CountSessions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func disconnectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceAdminServer).Disconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: disconnectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceAdminServer).Disconnect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceAdminServer).RevokeToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: revokeTokenMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceAdminServer).RevokeToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the presence admin service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ListSessions returns the live roster as a list of structs.
func (c *Client) ListSessions(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listSessionsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CountSessions returns the number of live sessions.
func (c *Client) CountSessions(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, countSessionsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Disconnect forces a connection closed and reports whether it was live.
func (c *Client) Disconnect(ctx context.Context, connectionID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, disconnectMethod, wrapperspb.String(connectionID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// RevokeToken refuses future connections presenting the token with this jti.
func (c *Client) RevokeToken(ctx context.Context, tokenID string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, revokeTokenMethod, wrapperspb.String(tokenID), new(emptypb.Empty), opts...)
}
