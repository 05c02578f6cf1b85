package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "vibee.v1.SessionService"
	RoomServiceName    = "vibee.v1.RoomService"
)

// SessionServer is the daemon's authentication surface.
type SessionServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Register(context.Context, *RegisterRequest) (*MessageResponse, error)
	VerifyOTP(context.Context, *VerifyOTPRequest) (*MessageResponse, error)
	ResendOTP(context.Context, *ResendOTPRequest) (*MessageResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
}

// RoomServer is the daemon's room surface.
type RoomServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Leave(context.Context, *LeaveRequest) (*LeaveResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	LoadOlder(context.Context, *LoadOlderRequest) (*LoadOlderResponse, error)
	Timeline(context.Context, *TimelineRequest) (*TimelineResponse, error)
	RecentRooms(context.Context, *RecentRoomsRequest) (*RecentRoomsResponse, error)
	WatchEvents(*WatchRequest, EventStream) error
}

// EventStream is the server side of RoomService/WatchEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *EventEnvelope) error { return s.ServerStream.SendMsg(e) }

// unary builds a method descriptor that decodes Req and calls fn on the
// registered server, honouring any interceptor.
func unary[S, Req, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

// SessionServiceDesc describes vibee.v1.SessionService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "Status", SessionServer.Status),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Register", SessionServer.Register),
		unary(SessionServiceName, "VerifyOTP", SessionServer.VerifyOTP),
		unary(SessionServiceName, "ResendOTP", SessionServer.ResendOTP),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
	},
	Metadata: "vibee/v1/session.proto",
}

// RoomServiceDesc describes vibee.v1.RoomService.
var RoomServiceDesc = grpc.ServiceDesc{
	ServiceName: RoomServiceName,
	HandlerType: (*RoomServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(RoomServiceName, "Join", RoomServer.Join),
		unary(RoomServiceName, "Leave", RoomServer.Leave),
		unary(RoomServiceName, "Send", RoomServer.Send),
		unary(RoomServiceName, "LoadOlder", RoomServer.LoadOlder),
		unary(RoomServiceName, "Timeline", RoomServer.Timeline),
		unary(RoomServiceName, "RecentRooms", RoomServer.RecentRooms),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(RoomServer).WatchEvents(in, &eventStream{stream})
			},
		},
	},
	Metadata: "vibee/v1/room.proto",
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// RegisterRoomServer registers srv on s.
func RegisterRoomServer(s grpc.ServiceRegistrar, srv RoomServer) {
	s.RegisterService(&RoomServiceDesc, srv)
}
