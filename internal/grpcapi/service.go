// Package grpcapi implements the gRPC surface of the grouping engine, used by
// ingestion workers on the hot path.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "grouper.v1.Grouping"

const (
	getVariantsMethod      = "/" + ServiceName + "/GetVariants"
	getProjectConfigMethod = "/" + ServiceName + "/GetProjectConfig"
)

// GroupingServer is the server API of the Grouping service.
type GroupingServer interface {
	GetVariants(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetProjectConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// groupingServiceDesc is written by hand: both messages are well-known Struct
// types, so there is nothing to generate.
var groupingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GroupingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetVariants", Handler: getVariantsHandler},
		{MethodName: "GetProjectConfig", Handler: getProjectConfigHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grouper/v1/grouping.proto",
}

// RegisterGroupingServer registers srv on s.
func RegisterGroupingServer(s grpc.ServiceRegistrar, srv GroupingServer) {
	s.RegisterService(&groupingServiceDesc, srv)
}

func getVariantsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GroupingServer).GetVariants(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getVariantsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GroupingServer).GetVariants(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getProjectConfigHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GroupingServer).GetProjectConfig(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getProjectConfigMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GroupingServer).GetProjectConfig(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a thin client for the Grouping service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetVariants calls Grouping/GetVariants.
func (c *Client) GetVariants(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getVariantsMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProjectConfig calls Grouping/GetProjectConfig.
func (c *Client) GetProjectConfig(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getProjectConfigMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
