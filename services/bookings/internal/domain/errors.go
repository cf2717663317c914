package domain

import "errors"

// Handlers map these with errors.Is; wrap them with fmt.Errorf("%w: ...") for detail.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrForbidden       = errors.New("forbidden")
)
