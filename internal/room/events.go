package room

import (
	"time"

	"github.com/vibee/vibee/internal/timeline"
)

// Timeline change sources.
const (
	SourceSnapshot = "snapshot"
	SourceHistory  = "history"
	SourceLive     = "live"
)

// TimelineChanged is the payload of room.timeline_changed.
type TimelineChanged struct {
	Room   string
	Source string
	Delta  timeline.Delta
	Len    int
}

// Notice is a membership announcement or a non-fatal server error. Its
// time is stamped on receipt and carries no ordering guarantee.
type Notice struct {
	Room   string
	Text   string
	Joiner string
	At     time.Time
}

// FetchFailed is the payload of room.fetch_failed.
type FetchFailed struct {
	Room string
	Err  string
}

// Joined is the payload of room.joined.
type Joined struct {
	Room  string
	Epoch uint64
}

// Left is the payload of room.left.
type Left struct {
	Room   string
	Reason string
}
