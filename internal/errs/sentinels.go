// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a violated precondition (blank uid, blank reason) detected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRejected indicates a raw pass document failed a required-field check.
	ErrRejected = errors.New("pass rejected")

	// ErrPassNotValid indicates the pass exists but is revoked or inactive.
	ErrPassNotValid = errors.New("pass not valid")

	// ErrProvisionTimeout indicates provisioning never produced a valid pass within the allowed wait.
	ErrProvisionTimeout = errors.New("provision timeout")

	// ErrUnauthorized indicates failed authentication/authorization (e.g., signature mismatch).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary scanner lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
