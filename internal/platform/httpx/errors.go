// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// FieldErrors is implemented by validation errors that can name offending fields.
type FieldErrors interface {
	FieldErrors() map[string]string
}

// RespondError maps the shared error taxonomy to RFC7807 responses. Details are
// fixed strings; the wrapped storage error never reaches the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		problem := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: "request failed validation"}
		var fe FieldErrors
		if errors.As(err, &fe) {
			problem.Errors = fe.FieldErrors()
		}
		write(w, problem)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "resource already exists")
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	case errors.Is(err, shared.ErrTransient):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "temporary backend failure")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
