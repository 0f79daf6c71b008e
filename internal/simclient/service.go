package simclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names of the furniture.v1.Simulator service. Every request and response
// is a google.protobuf.Struct.
const (
	ServiceName            = "furniture.v1.Simulator"
	resetFullMethodName    = "/furniture.v1.Simulator/Reset"
	stepFullMethodName     = "/furniture.v1.Simulator/Step"
	snapshotFullMethodName = "/furniture.v1.Simulator/Snapshot"
)

// #region client-api
// SimulatorServiceClient is the client API for the furniture.v1.Simulator service.
type SimulatorServiceClient interface {
	Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Step(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type simulatorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulatorServiceClient binds the service to a connection.
func NewSimulatorServiceClient(cc grpc.ClientConnInterface) SimulatorServiceClient {
	return &simulatorServiceClient{cc: cc}
}

func (c *simulatorServiceClient) Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resetFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *simulatorServiceClient) Step(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, stepFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *simulatorServiceClient) Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, snapshotFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-api

// #region server-api
// SimulatorServiceServer is the server API for the furniture.v1.Simulator service.
type SimulatorServiceServer interface {
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulatorServiceServer registers srv on s.
func RegisterSimulatorServiceServer(s grpc.ServiceRegistrar, srv SimulatorServiceServer) {
	s.RegisterService(&simulatorServiceDesc, srv)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServiceServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resetFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulatorServiceServer).Reset(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func stepHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServiceServer).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stepFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulatorServiceServer).Step(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulatorServiceServer).Snapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var simulatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "Step", Handler: stepHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "furniture/v1/simulator.proto",
}

// #endregion server-api
