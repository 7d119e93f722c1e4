package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict means the caller lost a race, e.g. another rider already
	// accepted the request. The caller should drop its local copy and resume polling.
	ErrConflict = errors.New("request already taken")

	// ErrNotFound means the referenced request or rider does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means the request is not in the state the
	// operation requires. Rejected without mutation.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError carries a field-level message for malformed input.
// No state changes before validation passes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// HTTPStatus maps taxonomy errors onto response codes.
func HTTPStatus(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
