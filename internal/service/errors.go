package service

import "errors"

// Error kinds. Every error returned by Service for a client-caused failure
// wraps exactly one of these; anything else is an internal failure.
var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

// kindError carries a client-facing message while matching its kind with
// errors.Is.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// IsClientError reports whether err is one of the error kinds above.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
