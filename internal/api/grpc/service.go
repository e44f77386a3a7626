// Package grpc exposes the metrics pipeline as the vitalog.v1.MetricsService
// gRPC service. Requests and responses are google.protobuf.Struct messages
// carrying the same fields as the JSON HTTP API.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vitalog.v1.MetricsService"

// MetricsServiceServer is the server API for MetricsService.
type MetricsServiceServer interface {
	Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Weekly(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Daily(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RepairDay(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMetricsServiceServer registers srv on s.
func RegisterMetricsServiceServer(s grpc.ServiceRegistrar, srv MetricsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryCall func(srv MetricsServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetricsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MetricsServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes MetricsService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetricsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: unaryHandler("Ingest", MetricsServiceServer.Ingest)},
		{MethodName: "Weekly", Handler: unaryHandler("Weekly", MetricsServiceServer.Weekly)},
		{MethodName: "Daily", Handler: unaryHandler("Daily", MetricsServiceServer.Daily)},
		{MethodName: "RepairDay", Handler: unaryHandler("RepairDay", MetricsServiceServer.RepairDay)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vitalog/v1/metrics.proto",
}

// MetricsServiceClient calls MetricsService over a client connection.
type MetricsServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMetricsServiceClient creates a client on cc.
func NewMetricsServiceClient(cc grpc.ClientConnInterface) *MetricsServiceClient {
	return &MetricsServiceClient{cc: cc}
}

func (c *MetricsServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MetricsServiceClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Ingest", in, opts...)
}

func (c *MetricsServiceClient) Weekly(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Weekly", in, opts...)
}

func (c *MetricsServiceClient) Daily(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Daily", in, opts...)
}

func (c *MetricsServiceClient) RepairDay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RepairDay", in, opts...)
}
