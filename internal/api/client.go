package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps the gRPC connection to a daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *SessionClient
	Room    *RoomClient
	Health  healthpb.HealthClient
}

// Dial connects to the daemon's Unix domain socket. The connection is
// lazy; the first call reports an absent daemon.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{
		conn:    conn,
		Session: &SessionClient{cc: conn},
		Room:    &RoomClient{cc: conn},
		Health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping asks the health service whether the daemon is serving.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("daemon %s", resp.GetStatus())
	}
	return nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient calls vibee.v1.SessionService.
type SessionClient struct {
	cc grpc.ClientConnInterface
}

func (c *SessionClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "/"+SessionServiceName+"/Status", in, opts...)
}

func (c *SessionClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "/"+SessionServiceName+"/Login", in, opts...)
}

func (c *SessionClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "/"+SessionServiceName+"/Register", in, opts...)
}

func (c *SessionClient) VerifyOTP(ctx context.Context, in *VerifyOTPRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "/"+SessionServiceName+"/VerifyOTP", in, opts...)
}

func (c *SessionClient) ResendOTP(ctx context.Context, in *ResendOTPRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "/"+SessionServiceName+"/ResendOTP", in, opts...)
}

func (c *SessionClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, "/"+SessionServiceName+"/Logout", in, opts...)
}

// RoomClient calls vibee.v1.RoomService.
type RoomClient struct {
	cc grpc.ClientConnInterface
}

func (c *RoomClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	return invoke[JoinResponse](ctx, c.cc, "/"+RoomServiceName+"/Join", in, opts...)
}

func (c *RoomClient) Leave(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*LeaveResponse, error) {
	return invoke[LeaveResponse](ctx, c.cc, "/"+RoomServiceName+"/Leave", in, opts...)
}

func (c *RoomClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, "/"+RoomServiceName+"/Send", in, opts...)
}

func (c *RoomClient) LoadOlder(ctx context.Context, in *LoadOlderRequest, opts ...grpc.CallOption) (*LoadOlderResponse, error) {
	return invoke[LoadOlderResponse](ctx, c.cc, "/"+RoomServiceName+"/LoadOlder", in, opts...)
}

func (c *RoomClient) Timeline(ctx context.Context, in *TimelineRequest, opts ...grpc.CallOption) (*TimelineResponse, error) {
	return invoke[TimelineResponse](ctx, c.cc, "/"+RoomServiceName+"/Timeline", in, opts...)
}

func (c *RoomClient) RecentRooms(ctx context.Context, in *RecentRoomsRequest, opts ...grpc.CallOption) (*RecentRoomsResponse, error) {
	return invoke[RecentRoomsResponse](ctx, c.cc, "/"+RoomServiceName+"/RecentRooms", in, opts...)
}

// EventWatcher receives envelopes from RoomService/WatchEvents.
type EventWatcher struct {
	stream grpc.ClientStream
}

// Recv blocks for the next envelope.
func (w *EventWatcher) Recv() (*EventEnvelope, error) {
	e := new(EventEnvelope)
	if err := w.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *RoomClient) WatchEvents(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*EventWatcher, error) {
	stream, err := c.cc.NewStream(ctx, &RoomServiceDesc.Streams[0], "/"+RoomServiceName+"/WatchEvents", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventWatcher{stream: stream}, nil
}
