package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the domain layer for HTTP mapping.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrValidation    = errors.New("validation failed")
	ErrJustification = errors.New("justification required")
	ErrImmutable     = errors.New("entry is immutable")
	ErrUnavailable   = errors.New("storage unavailable")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrJustification):
		Problem(w, http.StatusBadRequest, "Justification Required", err.Error())
	case errors.Is(err, ErrImmutable):
		Problem(w, http.StatusConflict, "Immutable Entry", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
