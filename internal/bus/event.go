package bus

import "time"

// Event kinds. Subscribers filter by namespace prefix ("session.", "room.", "channel.").
const (
	KindLoggedIn        = "session.logged_in"
	KindLoggedOut       = "session.logged_out"
	KindPhaseChanged    = "channel.phase_changed"
	KindChannelFailure  = "channel.failure"
	KindRoomJoined      = "room.joined"
	KindRoomLeft        = "room.left"
	KindTimelineChanged = "room.timeline_changed"
	KindNotice          = "room.notice"
	KindFetchFailed     = "room.fetch_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
