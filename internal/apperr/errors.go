package apperr

import "errors"

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates the delivery was already claimed or closed (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates the upstream rejected the bearer token (HTTP 401/403).
// Surfaced to the caller for re-authentication; never silently recovered here.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnavailable indicates a transient upstream failure (timeout, 5xx, open breaker).
var ErrUnavailable = errors.New("upstream unavailable")
