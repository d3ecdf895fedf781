package core

import "github.com/pkg/errors"

// FieldError reports a validation failure on one named input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError rejects an input before it reaches the cache or the store.
// Fields carries the per-field failures; when empty the input was rejected
// as a whole.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown signals an unrecoverable condition; the server stops accepting
// work when one surfaces.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown checks if an error of type shutdown is hidden inside err.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
