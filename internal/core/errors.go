// Package core defines the provider-agnostic calendar and email types.
package core

import "errors"

// Errors shared across the system.
var (
	// Provider errors
	ErrNotConnected     = errors.New("provider is not connected")
	ErrSyncTokenExpired = errors.New("sync token expired or rejected by provider")

	// Lookup errors
	ErrEventNotFound    = errors.New("event not found")
	ErrThreadNotFound   = errors.New("thread not found")
	ErrDraftNotFound    = errors.New("draft not found")
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrCursorNotFound   = errors.New("sync cursor not found")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
