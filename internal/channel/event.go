package channel

import (
	"time"

	"github.com/vibee/vibee/internal/protocol"
	"github.com/vibee/vibee/internal/status"
)

// EventKind identifies what a channel Event carries.
type EventKind int

const (
	EventSnapshot EventKind = iota + 1
	EventMessage
	EventAnnouncement
	EventPhase
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventMessage:
		return "message"
	case EventAnnouncement:
		return "announcement"
	case EventPhase:
		return "phase"
	case EventFailure:
		return "failure"
	}
	return "unknown"
}

// Event is delivered on Channel.Events in receipt order.
type Event struct {
	Kind EventKind

	Messages     []protocol.Message // EventSnapshot
	Message      protocol.Message   // EventMessage
	Announcement Announcement       // EventAnnouncement
	Phase        status.Phase       // EventPhase

	Err   error // EventFailure
	Fatal bool  // EventFailure: the channel has stopped
}

// Announcement is a membership notice. At is stamped on receipt and is not
// authoritative; it must not be used for ordering.
type Announcement struct {
	Text   string
	Joiner string
	At     time.Time
}
