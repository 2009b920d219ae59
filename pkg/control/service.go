package control

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "hsu.fundkeeper.FleetStatus"

// FleetStatusServer is the server side of the status service.
type FleetStatusServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	GetUnit(context.Context, *GetUnitRequest) (*GetUnitResponse, error)
	ListUnits(context.Context, *ListUnitsRequest) (*ListUnitsResponse, error)
}

func RegisterFleetStatusServer(registrar grpc.ServiceRegistrar, server FleetStatusServer) {
	registrar.RegisterService(&fleetStatusServiceDesc, server)
}

var fleetStatusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FleetStatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "GetUnit", Handler: getUnitHandler},
		{MethodName: "ListUnits", Handler: listUnitsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fundkeeper/status",
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetStatusServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FleetStatusServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getUnitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetUnitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetStatusServer).GetUnit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetUnit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FleetStatusServer).GetUnit(ctx, req.(*GetUnitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listUnitsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListUnitsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetStatusServer).ListUnits(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListUnits"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FleetStatusServer).ListUnits(ctx, req.(*ListUnitsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FleetStatusClient is the client side of the status service.
type FleetStatusClient interface {
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	GetUnit(ctx context.Context, in *GetUnitRequest, opts ...grpc.CallOption) (*GetUnitResponse, error)
	ListUnits(ctx context.Context, in *ListUnitsRequest, opts ...grpc.CallOption) (*ListUnitsResponse, error)
}

func NewFleetStatusClient(cc grpc.ClientConnInterface) FleetStatusClient {
	return &fleetStatusClient{cc: cc}
}

type fleetStatusClient struct {
	cc grpc.ClientConnInterface
}

func (c *fleetStatusClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *fleetStatusClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, "Status", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetStatusClient) GetUnit(ctx context.Context, in *GetUnitRequest, opts ...grpc.CallOption) (*GetUnitResponse, error) {
	out := new(GetUnitResponse)
	if err := c.invoke(ctx, "GetUnit", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetStatusClient) ListUnits(ctx context.Context, in *ListUnitsRequest, opts ...grpc.CallOption) (*ListUnitsResponse, error) {
	out := new(ListUnitsResponse)
	if err := c.invoke(ctx, "ListUnits", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
