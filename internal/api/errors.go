package api

import (
	"errors"
	"net/http"

	"studiodesk/internal/database"
	"studiodesk/internal/service"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errBadRequest = errors.New("bad request")

const msgSlotTaken = "someone else just booked this slot, please retry"

// classify maps a service error to an HTTP status and client message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, timeslot.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrUnknownAction):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, database.ErrConcurrentWriteConflict):
		return http.StatusConflict, msgSlotTaken
	case errors.Is(err, database.ErrConcurrentModification):
		return http.StatusConflict, "booking was modified, reload and retry"
	case errors.Is(err, service.ErrSlotConflict),
		errors.Is(err, service.ErrResourceUnavailable),
		errors.Is(err, database.ErrNotAvailable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrCheckFailed):
		return http.StatusServiceUnavailable, "conflict check failed, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeServiceError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeError(w, code, msg)
}

func grpcError(err error) error {
	code, msg := classify(err)
	switch code {
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, msg)
	case http.StatusNotFound:
		return status.Error(codes.NotFound, msg)
	case http.StatusConflict:
		return status.Error(codes.Aborted, msg)
	case http.StatusUnprocessableEntity:
		return status.Error(codes.FailedPrecondition, msg)
	case http.StatusServiceUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
