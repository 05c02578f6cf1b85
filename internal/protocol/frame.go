package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names on the live transport.
const (
	EventJoinRoom         = "join_room"
	EventSendMessage      = "send_message"
	EventLeaveRoom        = "leave_room"
	EventPreviousMessages = "previous_messages"
	EventReceiveMessage   = "receive_message"
	EventAnnouncement     = "join_room_announcement"
	EventError            = "error"
)

// SystemUser is the author the server uses for room announcements.
const SystemUser = "System"

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRequest is the payload of join_room and leave_room.
type RoomRequest struct {
	RoomID string `json:"roomid"`
}

// SendRequest is the payload of send_message.
type SendRequest struct {
	RoomID  string `json:"roomid"`
	Message string `json:"message"`
}

// PreviousMessages is the join snapshot.
type PreviousMessages struct {
	Messages []Message `json:"messages"`
}

// Announcement is a membership notice broadcast to the room.
type Announcement struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Joiner returns the identity that joined. System announcements carry the
// joiner only inside the text ("alice has joined the room.").
func (a Announcement) Joiner() string {
	if a.Username != "" && a.Username != SystemUser {
		return a.Username
	}
	if name, ok := strings.CutSuffix(a.Message, " has joined the room."); ok {
		return name
	}
	return ""
}

// ErrorPayload is sent by the server when a request is refused.
type ErrorPayload struct {
	Msg    string `json:"msg,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Text returns whichever of msg or reason the server filled in.
func (e ErrorPayload) Text() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Reason
}

// Encode builds a frame for event with payload as data.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Decode parses a raw frame. The data payload is left for DecodeData.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event name")
	}
	return f, nil
}

// DecodeData unmarshals the frame payload into v.
func (f Frame) DecodeData(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Event, err)
	}
	return nil
}
