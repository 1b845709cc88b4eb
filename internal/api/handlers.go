package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	bookingEngineService    = "studiodesk.v1.BookingEngine"
	methodCheckConflicts    = "/" + bookingEngineService + "/CheckConflicts"
	methodCheckAvailability = "/" + bookingEngineService + "/CheckAvailability"
	methodCheckSmartBooking = "/" + bookingEngineService + "/CheckSmartBooking"
)

// BookingEngineServer carries the read-only checks over gRPC. Messages are
// google.protobuf.Struct with the same fields as the HTTP JSON bodies.
type BookingEngineServer interface {
	CheckConflicts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckSmartBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type BookingEngineService struct {
	svc Services
}

func NewBookingEngineService(svc Services) *BookingEngineService {
	return &BookingEngineService{svc: svc}
}

func (s *BookingEngineService) CheckConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req slotRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	date, rng, err := req.parse()
	if err != nil {
		return nil, grpcError(err)
	}

	res, err := s.svc.Conflicts.CheckConflicts(ctx, date, rng, req.ExcludeBookingID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

func (s *BookingEngineService) CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req availabilityRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	window, err := req.window()
	if err != nil {
		return nil, grpcError(err)
	}

	unavailable, err := s.svc.Availability.CheckExcluding(ctx, req.ItemIDs, window, req.ExcludeBookingID)
	if err != nil {
		return nil, grpcError(err)
	}
	if unavailable == nil {
		unavailable = []string{}
	}
	return toStruct(map[string]any{"unavailable": unavailable})
}

func (s *BookingEngineService) CheckSmartBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req smartBookingRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	smart, err := req.toService()
	if err != nil {
		return nil, grpcError(err)
	}

	report, err := s.svc.Assistant.CheckSmartBooking(ctx, smart)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(report)
}

func fromStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

var bookingEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingEngineService,
	HandlerType: (*BookingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckConflicts", Handler: unaryHandler(methodCheckConflicts, BookingEngineServer.CheckConflicts)},
		{MethodName: "CheckAvailability", Handler: unaryHandler(methodCheckAvailability, BookingEngineServer.CheckAvailability)},
		{MethodName: "CheckSmartBooking", Handler: unaryHandler(methodCheckSmartBooking, BookingEngineServer.CheckSmartBooking)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studiodesk/v1/booking_engine.proto",
}

func RegisterBookingEngineServer(s grpc.ServiceRegistrar, srv BookingEngineServer) {
	s.RegisterService(&bookingEngineServiceDesc, srv)
}

type engineMethod func(BookingEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call engineMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server, ok := srv.(BookingEngineServer)
		if !ok {
			return nil, status.Error(codes.Internal, fmt.Sprintf("unexpected server type %T", srv))
		}
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingEngineClient is the client side of BookingEngineServer.
type BookingEngineClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingEngineClient(cc grpc.ClientConnInterface) *BookingEngineClient {
	return &BookingEngineClient{cc: cc}
}

func (c *BookingEngineClient) CheckConflicts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckConflicts, in, opts...)
}

func (c *BookingEngineClient) CheckAvailability(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckAvailability, in, opts...)
}

func (c *BookingEngineClient) CheckSmartBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckSmartBooking, in, opts...)
}

func (c *BookingEngineClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
