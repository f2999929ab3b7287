package bridge

import (
	"context"

	"google.golang.org/grpc"
)

// Service is implemented by Server and mirrors the teacher's
// hand-rolled ASIC service interface (pkg/hashing/methods/asic):
// a handful of unary calls plus one server-stream for the event bus,
// registered directly on *grpc.Server without generated stub code.
type Service interface {
	ListDevices(context.Context, *DeviceListRequest) (*DeviceListResponse, error)
	GetFeatures(context.Context, *GetFeaturesRequest) (*GetFeaturesResponse, error)
	GetAddress(context.Context, *GetAddressRequest) (*GetAddressResponse, error)
	SessionReply(context.Context, *SessionReplyRequest) (*Ack, error)
	SubscribeEvents(*EventSubscribeRequest, EventStream) error
}

// EventStream is the narrow send-only view of the generated
// grpc.ServerStream a real .proto would produce.
type EventStream interface {
	Send(*WireEvent) error
	Context() context.Context
}

// ServiceName is the gRPC service path the daemon registers under.
const ServiceName = "keepkeycore.bridge.v1.Bridge"

// RegisterService attaches Service's methods to srv using a literal
// grpc.ServiceDesc, the same mechanism protoc-gen-go-grpc emits, built
// by hand here because no .proto schema for the Queue API exists to
// generate from (spec §9 Open Questions apply to this surface exactly
// as they do to the device wire protocol).
func RegisterService(srv *grpc.Server, impl Service) {
	srv.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDevices", Handler: listDevicesHandler},
		{MethodName: "GetFeatures", Handler: getFeaturesHandler},
		{MethodName: "GetAddress", Handler: getAddressHandler},
		{MethodName: "SessionReply", Handler: sessionReplyHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SubscribeEvents", Handler: subscribeEventsHandler, ServerStreams: true},
	},
	Metadata: "keepkeycore/bridge.proto",
}

func listDevicesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeviceListRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).ListDevices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListDevices"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Service).ListDevices(ctx, req.(*DeviceListRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getFeaturesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetFeaturesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).GetFeatures(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetFeatures"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Service).GetFeatures(ctx, req.(*GetFeaturesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAddressHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetAddressRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).GetAddress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetAddress"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Service).GetAddress(ctx, req.(*GetAddressRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sessionReplyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SessionReplyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).SessionReply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SessionReply"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Service).SessionReply(ctx, req.(*SessionReplyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type eventServerStream struct {
	grpc.ServerStream
}

func (s *eventServerStream) Send(ev *WireEvent) error {
	return s.ServerStream.SendMsg(ev)
}

func subscribeEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(EventSubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(Service).SubscribeEvents(in, &eventServerStream{stream})
}
