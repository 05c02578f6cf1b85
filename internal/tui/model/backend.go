package model

import (
	"context"

	"github.com/vibee/vibee/internal/api"
)

// EventStream yields daemon events until the stream ends.
type EventStream interface {
	Recv() (*api.EventEnvelope, error)
}

// Backend is the subset of the daemon API the TUI consumes.
type Backend interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error)
	Register(ctx context.Context, req *api.RegisterRequest) (*api.MessageResponse, error)
	VerifyOTP(ctx context.Context, req *api.VerifyOTPRequest) (*api.MessageResponse, error)
	ResendOTP(ctx context.Context, req *api.ResendOTPRequest) (*api.MessageResponse, error)
	Logout(ctx context.Context) (*api.LogoutResponse, error)

	RecentRooms(ctx context.Context) (*api.RecentRoomsResponse, error)
	Join(ctx context.Context, room string) (*api.JoinResponse, error)
	Leave(ctx context.Context) (*api.LeaveResponse, error)
	Send(ctx context.Context, body string) error
	LoadOlder(ctx context.Context) (*api.LoadOlderResponse, error)
	Timeline(ctx context.Context) (*api.TimelineResponse, error)
	Watch(ctx context.Context, prefix string) (EventStream, error)
}

type clientBackend struct {
	c *api.Client
}

// FromClient adapts a daemon connection to Backend.
func FromClient(c *api.Client) Backend {
	return &clientBackend{c: c}
}

func (b *clientBackend) Status(ctx context.Context) (*api.StatusResponse, error) {
	return b.c.Session.Status(ctx, &api.StatusRequest{})
}

func (b *clientBackend) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	return b.c.Session.Login(ctx, req)
}

func (b *clientBackend) Register(ctx context.Context, req *api.RegisterRequest) (*api.MessageResponse, error) {
	return b.c.Session.Register(ctx, req)
}

func (b *clientBackend) VerifyOTP(ctx context.Context, req *api.VerifyOTPRequest) (*api.MessageResponse, error) {
	return b.c.Session.VerifyOTP(ctx, req)
}

func (b *clientBackend) ResendOTP(ctx context.Context, req *api.ResendOTPRequest) (*api.MessageResponse, error) {
	return b.c.Session.ResendOTP(ctx, req)
}

func (b *clientBackend) Logout(ctx context.Context) (*api.LogoutResponse, error) {
	return b.c.Session.Logout(ctx, &api.LogoutRequest{})
}

func (b *clientBackend) RecentRooms(ctx context.Context) (*api.RecentRoomsResponse, error) {
	return b.c.Room.RecentRooms(ctx, &api.RecentRoomsRequest{})
}

func (b *clientBackend) Join(ctx context.Context, room string) (*api.JoinResponse, error) {
	return b.c.Room.Join(ctx, &api.JoinRequest{Room: room})
}

func (b *clientBackend) Leave(ctx context.Context) (*api.LeaveResponse, error) {
	return b.c.Room.Leave(ctx, &api.LeaveRequest{})
}

func (b *clientBackend) Send(ctx context.Context, body string) error {
	_, err := b.c.Room.Send(ctx, &api.SendRequest{Body: body})
	return err
}

func (b *clientBackend) LoadOlder(ctx context.Context) (*api.LoadOlderResponse, error) {
	return b.c.Room.LoadOlder(ctx, &api.LoadOlderRequest{})
}

func (b *clientBackend) Timeline(ctx context.Context) (*api.TimelineResponse, error) {
	return b.c.Room.Timeline(ctx, &api.TimelineRequest{})
}

func (b *clientBackend) Watch(ctx context.Context, prefix string) (EventStream, error) {
	return b.c.Room.WatchEvents(ctx, &api.WatchRequest{Prefix: prefix})
}
