// Package scanpb defines the storescan.v1.ScanService gRPC contract.
//
// Messages are google.protobuf.Struct values whose fields mirror the JSON
// shapes of the HTTP API, so both transports share one encoding of
// model.ScannedCode.
package scanpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "storescan.v1.ScanService"

// Full method names.
const (
	MethodInsert = "/" + ServiceName + "/Insert"
	MethodDelete = "/" + ServiceName + "/Delete"
	MethodList   = "/" + ServiceName + "/List"
	MethodClear  = "/" + ServiceName + "/Clear"
	MethodHealth = "/" + ServiceName + "/Health"
)

// ScanServiceServer is the server API for ScanService.
type ScanServiceServer interface {
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Clear(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ScanServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScanServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ScanServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc is the grpc.ServiceDesc for ScanService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Insert", Handler: handler(MethodInsert, ScanServiceServer.Insert)},
		{MethodName: "Delete", Handler: handler(MethodDelete, ScanServiceServer.Delete)},
		{MethodName: "List", Handler: handler(MethodList, ScanServiceServer.List)},
		{MethodName: "Clear", Handler: handler(MethodClear, ScanServiceServer.Clear)},
		{MethodName: "Health", Handler: handler(MethodHealth, ScanServiceServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storescan/v1/scan.proto",
}

// RegisterScanServiceServer registers srv on s.
func RegisterScanServiceServer(s grpc.ServiceRegistrar, srv ScanServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ScanServiceClient is the client API for ScanService.
type ScanServiceClient interface {
	Insert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Clear(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Health(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type scanServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewScanServiceClient returns a client stub bound to cc.
func NewScanServiceClient(cc grpc.ClientConnInterface) ScanServiceClient {
	return &scanServiceClient{cc: cc}
}

func (c *scanServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *scanServiceClient) Insert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodInsert, in, opts)
}

func (c *scanServiceClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDelete, in, opts)
}

func (c *scanServiceClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodList, in, opts)
}

func (c *scanServiceClient) Clear(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodClear, in, opts)
}

func (c *scanServiceClient) Health(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodHealth, in, opts)
}
