package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the token is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the resource already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned when the service rejects the request body.
	ErrInvalid = errors.New("invalid request")
)

// FieldError is a single field failure reported by the document service.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-success response from the document service, decoded from
// its RFC 7807 body when present.
type APIError struct {
	StatusCode int          `json:"status"`
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("document service: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("document service: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrInvalid:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}
