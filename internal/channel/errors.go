package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRejected means the transport refused the credential. Fatal; never retried.
	ErrAuthRejected = errors.New("channel: credential rejected")

	// ErrTransportDropped means the connection was lost and reconnecting gave up.
	ErrTransportDropped = errors.New("channel: transport dropped")

	// ErrConnectTimeout means the room was not joined within the connect timeout.
	ErrConnectTimeout = errors.New("channel: connect timed out")

	// ErrEmptyComposerInput is returned for a blank message; nothing is sent.
	ErrEmptyComposerInput = errors.New("channel: empty message")

	// ErrNotJoined is returned when sending outside the Joined phase.
	ErrNotJoined = errors.New("channel: not joined")
)

// ServerError is an error frame the server sent after the room was joined.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("channel: server error: %s", e.Msg)
}
