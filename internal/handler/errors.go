package handler

import (
	"errors"
	"net/http"

	"carelane/internal/domain"
	"carelane/internal/httputil"
)

// respondDomainError maps domain errors to HTTP problem responses.
// Typed errors carry their own status via the HTTPError interface;
// sentinels cover the rest. Anything unmapped is an opaque 500 so no
// internal detail leaks.
func respondDomainError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrUnknownRole):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrTerminalState):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
