package api

import (
	"errors"
	"net/http"

	"FinExec/internal/domain/models"
	mid "FinExec/internal/middleware"
	xhttp "FinExec/pkg/http"
	"FinExec/pkg/queue"
)

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidSignal),
		errors.Is(err, models.ErrInvalidPlan),
		errors.Is(err, models.ErrInvalidAction),
		errors.Is(err, models.ErrInvalidConfig):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrUnknownTwap):
		return xhttp.NotFoundErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, models.ErrRequestInFlight):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, queue.ErrQueueFull):
		return xhttp.NewAppError("ERR_QUEUE_FULL", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, mid.ErrThrottled):
		return xhttp.TooManyRequestsError(err.Error()).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}
