// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed or missing input.
var ErrValidation = errors.New("validation failed")

// ErrUploadFailed indicates an attachment transfer did not complete.
var ErrUploadFailed = errors.New("upload failed")

// ErrUploadTimeout indicates an attachment transfer exceeded its deadline.
var ErrUploadTimeout = errors.New("upload timed out")

// Invalid returns an ErrValidation error naming the offending field.
func Invalid(field, format string, args ...any) error {
	return fmt.Errorf("%s %s: %w", field, fmt.Sprintf(format, args...), ErrValidation)
}

// RequireTenant rejects operations presented without a tenant id.
func RequireTenant(tenantID string) error {
	if tenantID == "" {
		return Invalid("tenant_id", "is required")
	}
	return nil
}
