package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/room"
	"go.uber.org/zap"
)

const watchBuffer = 256

// KindWatchReady is the first envelope of every watch stream, sent once
// the subscription is in place.
const KindWatchReady = "watch.ready"

// RoomService implements vibee.v1.RoomService.
type RoomService struct {
	profile string
	rooms   *room.Manager
	bus     *bus.Bus
	logger  *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRoomService creates the room service.
func NewRoomService(profile string, rooms *room.Manager, b *bus.Bus, logger *zap.Logger) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{profile: profile, rooms: rooms, bus: b, logger: logger, stop: make(chan struct{})}
}

// Shutdown ends every open WatchEvents stream.
func (s *RoomService) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *RoomService) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	sess, err := s.rooms.Join(ctx, req.Room)
	if err != nil {
		return nil, toStatus("join", err)
	}
	msgs, err := sess.Messages()
	if err != nil {
		return nil, toStatus("join", err)
	}
	return &JoinResponse{Room: sess.Room(), Epoch: sess.Epoch(), Messages: msgs}, nil
}

func (s *RoomService) Leave(_ context.Context, _ *LeaveRequest) (*LeaveResponse, error) {
	return &LeaveResponse{Left: s.rooms.Leave()}, nil
}

func (s *RoomService) Send(_ context.Context, req *SendRequest) (*SendResponse, error) {
	if err := s.rooms.Send(req.Body); err != nil {
		return nil, toStatus("send", err)
	}
	return &SendResponse{}, nil
}

func (s *RoomService) LoadOlder(ctx context.Context, _ *LoadOlderRequest) (*LoadOlderResponse, error) {
	res, err := s.rooms.LoadOlder(ctx)
	if err != nil {
		return nil, toStatus("load older", err)
	}
	return &LoadOlderResponse{
		Prepended: res.Delta.Prepended,
		Inserted:  res.Delta.Inserted,
		Appended:  res.Delta.Appended,
		Dropped:   res.Delta.Dropped,
		Offset:    res.Cursor.Offset,
		Exhausted: res.Cursor.Exhausted,
	}, nil
}

func (s *RoomService) Timeline(_ context.Context, _ *TimelineRequest) (*TimelineResponse, error) {
	sess, err := s.rooms.Active()
	if err != nil {
		return nil, toStatus("timeline", err)
	}
	msgs, err := sess.Messages()
	if err != nil {
		return nil, toStatus("timeline", err)
	}
	return &TimelineResponse{Room: sess.Room(), Messages: msgs}, nil
}

func (s *RoomService) RecentRooms(ctx context.Context, _ *RecentRoomsRequest) (*RecentRoomsResponse, error) {
	rooms, err := s.rooms.RecentRooms(ctx)
	if err != nil {
		return nil, toStatus("recent rooms", err)
	}
	return &RecentRoomsResponse{Rooms: rooms, LastRoom: s.rooms.LastRoom()}, nil
}

func (s *RoomService) WatchEvents(req *WatchRequest, stream EventStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, watchBuffer)
	defer unsub()

	if err := stream.Send(s.envelope(bus.NewEvent(KindWatchReady, nil), nil)); err != nil {
		return err
	}
	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(s.envelope(evt, payload)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-s.stop:
			return nil
		}
	}
}

func (s *RoomService) envelope(evt bus.Event, payload json.RawMessage) *EventEnvelope {
	return &EventEnvelope{
		EventID:          uuid.NewString(),
		Profile:          s.profile,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Kind:             evt.Kind,
		PayloadVersion:   1,
		Payload:          payload,
	}
}
