// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/habana-express/market-engine/internal/shared"
)

// ErrDuplicate reports a replayed idempotent request.
var ErrDuplicate = errors.New("duplicate request")

// Status maps an engine error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrInsufficientCustody),
		errors.Is(err, shared.ErrAlreadyCancelled),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidReturnQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Storage and
// unknown failures hide their detail from the client.
func RespondError(w http.ResponseWriter, err error) {
	status := Status(err)
	problem := ProblemDetail{
		Type:   problemType(err),
		Title:  http.StatusText(status),
		Status: status,
	}
	if status < http.StatusInternalServerError {
		problem.Detail = err.Error()
	}
	var typed *shared.Error
	if errors.As(err, &typed) && status < http.StatusInternalServerError {
		problem.Entity = typed.Entity
		problem.EntityID = typed.ID
	}
	JSON(w, status, problem)
}

func problemType(err error) string {
	kinds := []struct {
		kind error
		name string
	}{
		{shared.ErrUnauthorized, "unauthorized"},
		{shared.ErrForbidden, "forbidden"},
		{shared.ErrNotFound, "not-found"},
		{shared.ErrInsufficientStock, "insufficient-stock"},
		{shared.ErrInsufficientCustody, "insufficient-custody"},
		{shared.ErrInvalidReturnQuantity, "invalid-return-quantity"},
		{shared.ErrAlreadyCancelled, "already-cancelled"},
		{shared.ErrValidation, "validation-error"},
		{shared.ErrStorage, "storage-error"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return "urn:market:problem:" + k.name
		}
	}
	return ""
}
