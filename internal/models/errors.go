// internal/models/errors.go

package models

import "errors"

// Error taxonomy. Handlers map these onto the HTTP error envelope; services
// wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrValidation marks a malformed or incomplete payload. Rejected before
	// any persistence, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a missing or unknown credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks a cross-tenant access attempt. A single foreign unit
	// invalidates an entire ingest batch.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks an unknown device, unit or alert.
	ErrNotFound = errors.New("not found")

	// ErrUnprocessable marks a structurally valid payload missing required
	// sensor fields (no temperature after all fallbacks).
	ErrUnprocessable = errors.New("unprocessable payload")

	// ErrNoRule marks a unit with no resolvable threshold rule at any scope.
	// A configuration gap: evaluation is skipped and the gap surfaced, never
	// silently swallowed.
	ErrNoRule = errors.New("no alert rule configured")
)
