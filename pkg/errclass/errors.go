// Package errclass defines the stable, machine-readable error classes used
// across the server and client, and their HTTP status mapping.
package errclass

import (
	"errors"
	"fmt"
	"net/http"
)

// AnchorError is a stable error class with an optional detail message.
type AnchorError struct {
	Code    string
	Status  int
	Message string
}

func (e *AnchorError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnchorError) Is(target error) bool {
	t, ok := target.(*AnchorError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new AnchorError with the same class but a specific message.
func (e *AnchorError) WithMessage(msg string) *AnchorError {
	return &AnchorError{Code: e.Code, Status: e.Status, Message: msg}
}

// WithMessagef returns a new AnchorError with a formatted message.
func (e *AnchorError) WithMessagef(format string, args ...any) *AnchorError {
	return &AnchorError{Code: e.Code, Status: e.Status, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus returns the status for an error, unwrapping as needed.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var ae *AnchorError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// Stable error classes.
var (
	ErrNotFound        = &AnchorError{Code: "E_NOT_FOUND", Status: http.StatusNotFound}
	ErrUnauthenticated = &AnchorError{Code: "E_UNAUTHENTICATED", Status: http.StatusUnauthorized}
	ErrForbidden       = &AnchorError{Code: "E_FORBIDDEN", Status: http.StatusForbidden}
	ErrConflict        = &AnchorError{Code: "E_CONFLICT", Status: http.StatusConflict}
	ErrInvalid         = &AnchorError{Code: "E_INVALID", Status: http.StatusBadRequest}
	ErrRateLimited     = &AnchorError{Code: "E_RATE_LIMITED", Status: http.StatusTooManyRequests}
	ErrInternal        = &AnchorError{Code: "E_INTERNAL", Status: http.StatusInternalServerError}

	// Token verification failures. All map to 401; the distinct classes let
	// tests and logs tell expiry from tampering from fingerprint drift.
	ErrExpiredToken        = &AnchorError{Code: "E_TOKEN_EXPIRED", Status: http.StatusUnauthorized}
	ErrInvalidToken        = &AnchorError{Code: "E_TOKEN_INVALID", Status: http.StatusUnauthorized}
	ErrFingerprintMismatch = &AnchorError{Code: "E_FINGERPRINT_MISMATCH", Status: http.StatusUnauthorized}

	// Replay of a retired refresh token. Surfaced to callers as a plain 401;
	// the class exists so the token store can report family invalidation.
	ErrReplay = &AnchorError{Code: "E_REPLAY", Status: http.StatusUnauthorized}
)
