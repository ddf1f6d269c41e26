package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// ValidationError and InvalidStateError messages already carry the entity id
// and attempted transition, so their text is surfaced as-is.
func RespondError(w http.ResponseWriter, err error) {
	var (
		ise *shared.InvalidStateError
		ve  *shared.ValidationError
	)
	switch {
	case errors.As(err, &ve):
		Problem(w, http.StatusBadRequest, "Validation Failed", ve.Error())
	case errors.As(err, &ise):
		Problem(w, http.StatusConflict, "Invalid State", ise.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
