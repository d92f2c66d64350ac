package twitchapi

import (
	"fmt"
	"net/http"
)

// The error taxonomy is the uniform contract across all Helix endpoints:
// every call maps its HTTP status through errorFromStatus. Only transport
// failures drive retries elsewhere; the rest are terminal for the operation.

// ValidationError covers malformed or over-limit requests (HTTP 400) and
// client-side violations caught before any network call, such as a batch
// user lookup above 100 entries.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }

// AuthError is an invalid or unauthorized token (HTTP 401). It is fatal to
// the affected socket's connection attempt and must never be silently
// retried.
type AuthError struct {
	Op string
}

func (e *AuthError) Error() string { return e.Op + ": invalid or unauthorized access token" }

// Fatal marks the error as non-retryable for reconnect loops.
func (e *AuthError) Fatal() bool { return true }

// PermissionError means the actor lacks a required permission or scope
// (HTTP 403), e.g. the given moderator is not a moderator.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string { return e.Op + ": missing required permission or scope" }

// NotFoundError means the target does not exist or is outside its
// modification window (HTTP 404).
type NotFoundError struct {
	Op string
}

func (e *NotFoundError) Error() string { return e.Op + ": target not found" }

// ConflictError means a conflicting concurrent modification (HTTP 409).
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string { return e.Op + ": conflicting concurrent modification" }

// RateLimitError covers the channel-level (HTTP 423) and global (HTTP 429)
// rate limits. Callers should back off; the client does not retry.
type RateLimitError struct {
	Op     string
	Global bool
}

func (e *RateLimitError) Error() string {
	if e.Global {
		return e.Op + ": global rate limit exceeded"
	}
	return e.Op + ": channel rate limit exceeded"
}

// TransportError is a connection, transport, or timeout failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// errorFromStatus maps a Helix response status to the typed taxonomy.
// 2xx yields nil.
func errorFromStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest:
		return &ValidationError{Op: op, Message: "bad request"}
	case status == http.StatusUnauthorized:
		return &AuthError{Op: op}
	case status == http.StatusForbidden:
		return &PermissionError{Op: op}
	case status == http.StatusNotFound:
		return &NotFoundError{Op: op}
	case status == http.StatusConflict:
		return &ConflictError{Op: op}
	case status == http.StatusLocked:
		return &RateLimitError{Op: op}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Op: op, Global: true}
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}
