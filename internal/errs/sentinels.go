// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client layers.
var (
	// ErrNotFound indicates the requested entity does not exist locally or remotely.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRequest indicates a request was rejected because an identical one already ran.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrUnauthorized indicates a missing, expired or rejected bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the server refused the request due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrStopped indicates work was submitted after the event loop stopped.
	ErrStopped = errors.New("loop stopped")
)
