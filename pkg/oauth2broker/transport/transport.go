// Package transport defines the token-endpoint transport contract the
// facade drives, along with the response-metadata capture slot and the
// error-mapper contract that turns a raw transport error into the
// broker's closed error taxonomy.
package transport

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
)

// ResponseMetadata is the captured subset of an HTTP response the broker
// needs for classification and retry hints, independent of any particular
// HTTP client implementation.
type ResponseMetadata struct {
	Status     int
	RetryAfter time.Duration
	HasStatus  bool
	HasRetry   bool
}

// ResponseMetadataSlot is a one-shot cell a transport implementation
// populates once response headers are available. It is cleared before
// each dispatch so stale metadata from a prior call never leaks into a
// new one.
type ResponseMetadataSlot struct {
	mu   sync.Mutex
	meta *ResponseMetadata
}

// Take clears and returns whatever metadata was stored, or nil if none was.
func (s *ResponseMetadataSlot) Take() *ResponseMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.meta
	s.meta = nil
	return meta
}

// Store records metadata, overwriting anything previously stored.
func (s *ResponseMetadataSlot) Store(meta ResponseMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = &meta
}

// TokenHttpClient is the contract the facade drives to dispatch a token
// request. Implementations must populate metadata with status/retry-after
// once response headers are available, even on a non-2xx response, and
// must not follow redirects.
type TokenHttpClient interface {
	// Do executes a POST to endpoint with form-encoded body, returning the
	// raw response body (capped, implementation-defined) on any response
	// it received headers for. metadata is populated before Do returns
	// whenever response headers were received, including when Do then
	// returns an error; a request that never got a response leaves it
	// empty.
	Do(ctx context.Context, endpoint *url.URL, form url.Values, auth ClientAuth, metadata *ResponseMetadataSlot) (body []byte, status int, err error)
}

// ClientAuth carries the client authentication material and method
// selected by the provider descriptor for a single request.
type ClientAuth struct {
	Method       provider.ClientAuthMethod
	ClientID     string
	ClientSecret string
}

// ErrorMapper turns a raw transport error into the broker's closed error
// taxonomy. It must propagate any status/retry-after metadata it was
// given and must not assume anything about the underlying transport
// error's concrete type beyond the error interface and the BuildError and
// NetworkError wrappers defined in this package.
type ErrorMapper interface {
	MapTransportError(strategy provider.Strategy, grant provider.Grant, metadata *ResponseMetadata, transportErr error) *brokererrors.Error
}

// BuildError marks a failure to construct an outbound token request
// (e.g. a malformed endpoint URL) — the token endpoint was never
// contacted, so this is always a caller/config defect, never transient.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return e.Err.Error() }
func (e *BuildError) Unwrap() error { return e.Err }

// NetworkError marks a failure reaching or reading from the token
// endpoint after the request was successfully constructed: connection
// refused, DNS failure, a timeout, or an I/O error reading the response
// body once headers were already received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the wrapped error is a timeout, per the
// standard net.Error convention.
func (e *NetworkError) Timeout() bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(e.Err, &timeoutErr) && timeoutErr.Timeout()
}

// DefaultErrorMapper classifies a transport failure by its stage:
// BuildError is always Config, a NetworkError's Timeout() determines
// Transient vs. Transport, and anything else (a custom TokenHttpClient
// that returns a bare error rather than one of these two) falls back to
// the strategy classifier keyed on NetworkError so it still gets a
// reasonable Kind.
type DefaultErrorMapper struct{}

// MapTransportError implements ErrorMapper.
func (DefaultErrorMapper) MapTransportError(strategy provider.Strategy, grant provider.Grant, metadata *ResponseMetadata, transportErr error) *brokererrors.Error {
	var buildErr *BuildError
	if errors.As(transportErr, &buildErr) {
		return brokererrors.Wrap(brokererrors.KindConfig, "failed to build token endpoint request", transportErr)
	}

	var netErr *NetworkError
	if errors.As(transportErr, &netErr) {
		var status *int
		var retryAfter *time.Duration
		if metadata != nil && metadata.HasStatus {
			s := metadata.Status
			status = &s
		}
		if metadata != nil && metadata.HasRetry {
			r := metadata.RetryAfter
			retryAfter = &r
		}
		if netErr.Timeout() {
			return brokererrors.Transient("token endpoint request timed out", status, retryAfter)
		}
		mapped := brokererrors.Wrap(brokererrors.KindTransport, "network error contacting token endpoint", transportErr)
		mapped.Status = status
		mapped.RetryAfter = retryAfter
		return mapped
	}

	ctx := provider.ErrorContext{
		Grant:        grant,
		NetworkError: true,
	}
	if metadata != nil && metadata.HasStatus {
		ctx.NetworkError = false
		ctx.HTTPStatus = metadata.Status
	}
	if transportErr != nil {
		ctx.ErrorDescription = transportErr.Error()
	}

	classified := strategy.Classify(ctx)
	if metadata != nil && metadata.HasRetry {
		retryAfter := metadata.RetryAfter
		classified.RetryAfter = &retryAfter
	}
	return classified
}
