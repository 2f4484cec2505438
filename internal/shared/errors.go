package shared

import "errors"

// Error taxonomy shared by every package. Callers wrap these with
// fmt.Errorf("pkg: ...: %w", ...) and test with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates a missing or invalid principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated principal lacking a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrTransient indicates a timeout or connection failure against a backend.
	ErrTransient = errors.New("transient failure")
	// ErrInternal indicates an unexpected backend failure.
	ErrInternal = errors.New("internal error")

	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
