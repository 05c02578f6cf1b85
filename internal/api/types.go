package api

import (
	"encoding/json"

	"github.com/vibee/vibee/internal/protocol"
)

type StatusRequest struct{}

type StatusResponse struct {
	Profile          string   `json:"profile"`
	PID              int      `json:"pid"`
	UptimeMs         int64    `json:"uptime_ms"`
	LoggedIn         bool     `json:"logged_in"`
	Subject          string   `json:"subject,omitempty"`
	ExpiresAtUnixMs  int64    `json:"expires_at_unix_ms,omitempty"`
	LastLogoutReason string   `json:"last_logout_reason,omitempty"`
	Room             string   `json:"room,omitempty"`
	Epoch            uint64   `json:"epoch,omitempty"`
	Phase            string   `json:"phase"`
	Messages         int      `json:"messages"`
	Offset           int      `json:"offset"`
	PageSize         int      `json:"page_size"`
	Exhausted        bool     `json:"exhausted"`
	LastError        string   `json:"last_error,omitempty"`
	Notices          []Notice `json:"notices,omitempty"`
	LastRoom         string   `json:"last_room,omitempty"`
}

type Notice struct {
	Text     string `json:"text"`
	Joiner   string `json:"joiner,omitempty"`
	AtUnixMs int64  `json:"at_unix_ms"`
}

// LoginRequest authenticates with username and password, or adopts an
// already issued Token when one is given.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type LoginResponse struct {
	Subject         string `json:"subject"`
	ExpiresAtUnixMs int64  `json:"expires_at_unix_ms,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

// MessageResponse carries the collaborator's human-readable reply.
type MessageResponse struct {
	Message string `json:"message"`
}

type LogoutRequest struct{}

type LogoutResponse struct {
	WasLoggedIn bool `json:"was_logged_in"`
}

type JoinRequest struct {
	Room string `json:"room"`
}

type JoinResponse struct {
	Room     string             `json:"room"`
	Epoch    uint64             `json:"epoch"`
	Messages []protocol.Message `json:"messages"`
}

type LeaveRequest struct{}

type LeaveResponse struct {
	Left bool `json:"left"`
}

type SendRequest struct {
	Body string `json:"body"`
}

type SendResponse struct{}

type LoadOlderRequest struct{}

type LoadOlderResponse struct {
	Prepended int  `json:"prepended"`
	Inserted  int  `json:"inserted"`
	Appended  int  `json:"appended"`
	Dropped   int  `json:"dropped"`
	Offset    int  `json:"offset"`
	Exhausted bool `json:"exhausted"`
}

type TimelineRequest struct{}

type TimelineResponse struct {
	Room     string             `json:"room"`
	Messages []protocol.Message `json:"messages"`
}

type RecentRoomsRequest struct{}

type RecentRoomsResponse struct {
	Rooms    []string `json:"rooms"`
	LastRoom string   `json:"last_room,omitempty"`
}

// WatchRequest selects bus events by kind prefix; empty means all.
type WatchRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

// EventEnvelope is one bus event streamed to a watcher.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Profile          string          `json:"profile"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Kind             string          `json:"kind"`
	PayloadVersion   int             `json:"payload_version"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}
