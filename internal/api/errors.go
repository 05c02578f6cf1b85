package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/channel"
	"github.com/vibee/vibee/internal/history"
	"github.com/vibee/vibee/internal/room"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps a domain error to a gRPC status error.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	return grpcstatus.Errorf(codeFor(err), "%s: %v", op, err)
}

func codeFor(err error) codes.Code {
	var (
		apiErr   *auth.APIError
		fetchErr *history.FetchError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, history.ErrUnauthorized),
		errors.Is(err, channel.ErrAuthRejected),
		errors.Is(err, room.ErrLoggedOut):
		return codes.Unauthenticated
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, room.ErrInvalidRoom),
		errors.Is(err, channel.ErrEmptyComposerInput):
		return codes.InvalidArgument
	case errors.Is(err, room.ErrNoRoom),
		errors.Is(err, channel.ErrNotJoined):
		return codes.FailedPrecondition
	case errors.Is(err, history.ErrFetchInFlight):
		return codes.Aborted
	case errors.Is(err, channel.ErrConnectTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return codes.Unauthenticated
		case apiErr.Status >= 500:
			return codes.Unavailable
		case apiErr.Status >= 400:
			return codes.InvalidArgument
		}
		return codes.Unavailable
	case errors.Is(err, channel.ErrTransportDropped),
		errors.As(err, &fetchErr):
		return codes.Unavailable
	}
	return codes.Internal
}
