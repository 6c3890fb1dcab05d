package utils

import "errors"

// StatusError is an error carrying the HTTP status it is reported with.
type StatusError struct {
	error
	status int
}

// Status returns the status code of the error.
func (se StatusError) Status() int {
	return se.status
}

// Unwrap returns the underlying error.
func (se StatusError) Unwrap() error {
	return se.error
}

// NewStatusError creates a new StatusError.
func NewStatusError(err error, s int) error {
	return StatusError{error: err, status: s}
}

// StatusCode returns the status of the first StatusError in err's chain, or
// fallback if there is none.
func StatusCode(err error, fallback int) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.status
	}
	return fallback
}
