package transport

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrorClass partitions remote failures for retry decisions.
type ErrorClass string

const (
	// ClassTransient covers rate limiting and server-side failures that are
	// worth retrying with backoff.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent covers everything else: bad requests, auth failures,
	// not-found. Never retried.
	ClassPermanent ErrorClass = "permanent"
)

// Classify maps an error from a provider call to its retry class.
func Classify(err error) ErrorClass {
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}

// IsTransient reports whether err is a rate-limit (429) or server-side (5xx)
// failure. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusTooManyRequests || (ge.Code >= 500 && ge.Code <= 599)
	}
	return false
}

// StatusCode extracts the HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}
