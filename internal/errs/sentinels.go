// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates out-of-contract input (empty medicine name, alarm out of range, bad dose).
	ErrValidation = errors.New("validation")

	// ErrTransportUnreachable indicates the device could not be reached (network error or timeout).
	ErrTransportUnreachable = errors.New("device unreachable")

	// ErrMalformedSnapshot indicates the device answered with a payload that fails shape validation.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the client is temporarily blocked after repeated auth failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrSyncInProgress indicates a sync request was dropped because another one is outstanding.
	ErrSyncInProgress = errors.New("sync in progress")
)
