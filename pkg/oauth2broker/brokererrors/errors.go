// Package brokererrors defines the closed error-kind taxonomy the token
// broker surfaces to callers: a fixed set of tags (Storage, Config,
// Transient, Transport, InvalidGrant, InvalidClient, InsufficientScope,
// Revoked) plus the structured fields (HTTP status, retry-after) transport
// errors carry.
package brokererrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the closed set of broker error classifications.
type Kind string

// The closed set of error kinds. Adding a new Transient-like kind must not
// also make it eligible for the refresh auto-revoke heuristic in the
// broker package, which checks specifically for KindInvalidGrant/KindRevoked.
const (
	KindStorage           Kind = "storage"
	KindConfig            Kind = "config"
	KindTransient         Kind = "transient"
	KindTransport         Kind = "transport"
	KindInvalidGrant      Kind = "invalid_grant"
	KindInvalidClient     Kind = "invalid_client"
	KindInsufficientScope Kind = "insufficient_scope"
	KindRevoked           Kind = "revoked"
)

// Error is the broker's structured error type. Every broker operation
// returns errors of this type (or one wrapping it), so callers can branch
// on Kind and, for Transient errors, on Status/RetryAfter.
type Error struct {
	Kind       Kind
	Message    string
	Status     *int
	RetryAfter *time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports err as matching another *Error with the same Kind, so
// errors.Is(err, &Error{Kind: KindInvalidGrant}) works as a kind check.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs a bare error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Transient constructs a Transient error carrying optional status/retry-after
// metadata, as required of every TokenEndpoint classification (spec §4.6).
func Transient(message string, status *int, retryAfter *time.Duration) *Error {
	return &Error{Kind: KindTransient, Message: message, Status: status, RetryAfter: retryAfter}
}

// Is reports whether err is a broker *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err if it is a broker *Error, and ok=false
// otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// Sentinel config errors for conditions that never depend on external
// input — these are always the same message. They are all KindConfig, so
// errors.Is against one of them matches any KindConfig error; they are
// returned unwrapped, so == against the package-level value identifies a
// specific one.
var (
	// ErrMissingAccessToken is returned when a token response carries no
	// access_token field.
	ErrMissingAccessToken = New(KindConfig, "token response is missing access_token")

	// ErrMissingExpiry is returned when a token response supplies neither
	// expires_in nor an absolute expiry.
	ErrMissingExpiry = New(KindConfig, "token response is missing both expires_in and expires_at")

	// ErrMissingRefreshToken is returned when a refresh operation has no
	// cached refresh secret to present to the provider.
	ErrMissingRefreshToken = New(KindConfig, "no refresh token is cached for this record")

	// ErrMissingExpiresIn is returned when a facade response omits
	// expires_in entirely.
	ErrMissingExpiresIn = New(KindConfig, "token response is missing expires_in")

	// ErrExpiresInOutOfRange is returned when expires_in cannot be
	// represented as a positive number of seconds.
	ErrExpiresInOutOfRange = New(KindConfig, "expires_in is out of representable range")

	// ErrNonPositiveExpiresIn is returned when expires_in is zero or negative.
	ErrNonPositiveExpiresIn = New(KindConfig, "expires_in must be positive")
)

// UnsupportedGrant reports that the provider descriptor does not enable the
// requested grant.
func UnsupportedGrant(grant string) *Error {
	return New(KindConfig, fmt.Sprintf("grant %q is not supported by this provider", grant))
}

// ScopesChanged reports that the provider returned a scope set different
// from the one requested for the given grant.
func ScopesChanged(grant string) *Error {
	return New(KindConfig, fmt.Sprintf("provider changed the granted scope for %q", grant))
}

// InvalidGrant constructs an InvalidGrant error with the given message.
func InvalidGrant(message string) *Error {
	return New(KindInvalidGrant, message)
}

// InvalidClient constructs an InvalidClient error with the given message.
func InvalidClient(message string) *Error {
	return New(KindInvalidClient, message)
}

// InsufficientScope constructs an InsufficientScope error with the given message.
func InsufficientScope(message string) *Error {
	return New(KindInsufficientScope, message)
}

// Revoked constructs a Revoked error with the given message.
func Revoked(message string) *Error {
	return New(KindRevoked, message)
}
