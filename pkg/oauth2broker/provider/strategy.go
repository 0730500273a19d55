package provider

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
)

// ErrorContext carries the primitive data a Strategy classifies a token
// endpoint response against. It deliberately holds only primitive fields
// so implementations never depend on a particular transport's error type.
type ErrorContext struct {
	Grant            Grant
	HTTPStatus       int
	OAuthError       string
	ErrorDescription string
	BodyPreview      string
	NetworkError     bool
	// RetryAfter carries the response's Retry-After header, if any, so a
	// Transient classification can surface it alongside Status — this is
	// the only path a server-returned 429/503 response has to reach
	// brokererrors.Error.RetryAfter, since a server response with a
	// well-formed body never goes through MapTransportError.
	RetryAfter *time.Duration
}

// Strategy classifies provider responses into the broker's closed error
// taxonomy and may augment outbound token requests. Implementations
// SHOULD be stateless.
type Strategy interface {
	Classify(ctx ErrorContext) *brokererrors.Error
	AugmentTokenRequest(grant Grant, form url.Values)
}

const bodyPreviewLimit = 256

var exactErrorKinds = map[string]brokererrors.Kind{
	"invalid_grant":           brokererrors.KindInvalidGrant,
	"access_denied":           brokererrors.KindInvalidGrant,
	"invalid_client":          brokererrors.KindInvalidClient,
	"unauthorized_client":     brokererrors.KindInvalidClient,
	"invalid_scope":           brokererrors.KindInsufficientScope,
	"insufficient_scope":      brokererrors.KindInsufficientScope,
	"temporarily_unavailable": brokererrors.KindTransient,
	"server_error":            brokererrors.KindTransient,
	// RFC 8628 §3.5 device flow polling signals: neither terminates the
	// flow, both mean "keep polling" (slow_down additionally asks the
	// poller to widen its interval; PollDeviceToken keeps polling at its
	// configured interval).
	"authorization_pending": brokererrors.KindTransient,
	"slow_down":             brokererrors.KindTransient,
}

// substringErrorKinds is exactErrorKinds's token set in a fixed precedence
// order, used when scanning error_description/body_preview for a token
// that didn't match exactly — ranging over exactErrorKinds directly would
// make the Kind chosen for text containing two tokens (e.g. both
// "invalid_client" and "insufficient_scope") depend on Go's randomized
// map iteration order.
var substringErrorKinds = []struct {
	token string
	kind  brokererrors.Kind
}{
	{"invalid_grant", brokererrors.KindInvalidGrant},
	{"access_denied", brokererrors.KindInvalidGrant},
	{"invalid_client", brokererrors.KindInvalidClient},
	{"unauthorized_client", brokererrors.KindInvalidClient},
	{"invalid_scope", brokererrors.KindInsufficientScope},
	{"insufficient_scope", brokererrors.KindInsufficientScope},
	{"temporarily_unavailable", brokererrors.KindTransient},
	{"server_error", brokererrors.KindTransient},
	{"authorization_pending", brokererrors.KindTransient},
	{"slow_down", brokererrors.KindTransient},
}

// DefaultStrategy classifies failures with a fixed precedence: network
// errors first, then exact OAuth error-field matches, then substring
// scanning, then an HTTP-status fallback.
type DefaultStrategy struct{}

// Classify implements Strategy.
func (DefaultStrategy) Classify(ctx ErrorContext) *brokererrors.Error {
	if ctx.NetworkError {
		return brokererrors.Transient("network error contacting token endpoint", nil, nil)
	}

	if kind, ok := exactErrorKinds[strings.ToLower(ctx.OAuthError)]; ok {
		return classifiedError(kind, ctx)
	}
	if kind, ok := exactErrorKinds[strings.ToLower(ctx.ErrorDescription)]; ok {
		return classifiedError(kind, ctx)
	}

	haystack := strings.ToLower(ctx.ErrorDescription + " " + ctx.BodyPreview)
	if strings.Contains(haystack, "retry") || strings.Contains(haystack, "temporarily_unavailable") {
		return classifiedError(brokererrors.KindTransient, ctx)
	}
	for _, entry := range substringErrorKinds {
		if strings.Contains(haystack, entry.token) {
			return classifiedError(entry.kind, ctx)
		}
	}

	return classifiedError(statusFallbackKind(ctx.HTTPStatus), ctx)
}

func statusFallbackKind(status int) brokererrors.Kind {
	switch {
	case status == 400 || status == 404 || status == 410:
		return brokererrors.KindInvalidGrant
	case status == 401:
		return brokererrors.KindInvalidClient
	case status == 403:
		return brokererrors.KindInsufficientScope
	case status == 429 || status >= 500:
		return brokererrors.KindTransient
	default:
		return brokererrors.KindTransient
	}
}

func classifiedError(kind brokererrors.Kind, ctx ErrorContext) *brokererrors.Error {
	message := ctx.ErrorDescription
	if message == "" {
		message = TruncateBodyPreview(ctx.BodyPreview)
	}
	if message == "" {
		message = "token endpoint returned an error"
	}

	if kind == brokererrors.KindTransient {
		var status *int
		if ctx.HTTPStatus != 0 {
			s := ctx.HTTPStatus
			status = &s
		}
		return brokererrors.Transient(message, status, ctx.RetryAfter)
	}
	return brokererrors.New(kind, message)
}

// AugmentTokenRequest is a no-op by default; providers with nonstandard
// token request requirements override it.
func (DefaultStrategy) AugmentTokenRequest(Grant, url.Values) {}

// TruncateBodyPreview truncates s to at most bodyPreviewLimit runes,
// appending an ellipsis when truncation occurred. Truncation counts runes,
// not bytes, so multi-byte UTF-8 sequences are never split.
func TruncateBodyPreview(s string) string {
	if utf8.RuneCountInString(s) <= bodyPreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:bodyPreviewLimit]) + "…"
}
