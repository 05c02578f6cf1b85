package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is one chat message as carried by every source: the join
// snapshot, history pages and live pushes. There is no server-assigned id.
type Message struct {
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Key is the composite identity used for de-duplication.
type Key struct {
	Username string
	Body     string
	At       int64
}

// Key returns the (author, body, timestamp) identity of m.
func (m Message) Key() Key {
	return Key{Username: m.Username, Body: m.Body, At: m.Timestamp.UnixNano()}
}

// Valid reports whether m can enter a timeline.
func (m Message) Valid() bool {
	return m.Username != "" && strings.TrimSpace(m.Body) != "" && !m.Timestamp.IsZero()
}

// naive layouts the server emits when a stored datetime carries no zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less ISO-8601
// timestamps, which are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// FormatTimestamp renders t the way the server does: UTC with a Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type wireMessage struct {
	Username  string `json:"username"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Username: m.Username, Body: m.Body}
	if !m.Timestamp.IsZero() {
		w.Timestamp = FormatTimestamp(m.Timestamp)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Username = w.Username
	m.Body = w.Body
	m.Timestamp = time.Time{}
	if w.Timestamp != "" {
		ts, err := ParseTimestamp(w.Timestamp)
		if err != nil {
			return err
		}
		m.Timestamp = ts
	}
	return nil
}
