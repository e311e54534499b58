package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the handler layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream unavailable")
)

// RespondError maps sentinel errors to detail-envelope responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Detail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		Detail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrForbidden):
		Detail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Detail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUpstream):
		Detail(w, http.StatusBadGateway, err.Error())
	default:
		Detail(w, http.StatusInternalServerError, "internal error")
	}
}
