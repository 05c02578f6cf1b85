package history

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means there is no valid credential, or the history
	// collaborator rejected it. It is handled as a forced logout.
	ErrUnauthorized = errors.New("history: unauthorized")

	// ErrFetchInFlight is returned when a fetch is already pending for the room.
	ErrFetchInFlight = errors.New("history: fetch already in flight")
)

// FetchError is a retryable failure: the network or the server broke. The
// cursor is not advanced.
type FetchError struct {
	Status int // 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("history: fetch failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("history: fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
