// Package hardened wraps a transport.TokenHttpClient with exponential
// backoff retry, retrying only the requests the default strategy would
// classify as Transient — every other outcome (including a successful
// non-2xx OAuth error response) is returned on the first attempt. This
// is the documented "custom hardened client" extension point the broker
// itself never exercises on its own.
package hardened

import (
	"context"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
)

// Client decorates a transport.TokenHttpClient with retry-on-Transient
// semantics, driven by a caller-supplied backoff.BackOff so the retry
// schedule (max elapsed time, max interval, jitter) is the caller's
// choice rather than a fixed policy baked into this package.
type Client struct {
	inner    transport.TokenHttpClient
	strategy provider.Strategy
	retry    backoff.BackOff
}

// New wraps inner with retry behavior classified by strategy, pacing
// retries with retry. retry.Reset() is called at the start of every Do so
// one Client instance can be reused across unrelated requests without
// carrying over a prior request's elapsed-time budget.
func New(inner transport.TokenHttpClient, strategy provider.Strategy, retry backoff.BackOff) *Client {
	return &Client{inner: inner, strategy: strategy, retry: retry}
}

var _ transport.TokenHttpClient = (*Client)(nil)

// Do implements transport.TokenHttpClient, retrying only attempts whose
// outcome the strategy classifies as Transient. Whatever the last attempt
// produced — success, a non-transient error response, or a backoff that
// has given up — is returned to the facade for normal classification.
func (c *Client) Do(
	ctx context.Context,
	endpoint *url.URL,
	form url.Values,
	auth transport.ClientAuth,
	metadata *transport.ResponseMetadataSlot,
) ([]byte, int, error) {
	c.retry.Reset()

	var (
		body   []byte
		status int
		err    error
	)

	for {
		body, status, err = c.inner.Do(ctx, endpoint, form, auth, metadata)

		if !c.isTransient(status, err) {
			return body, status, err
		}

		wait := c.retry.NextBackOff()
		if wait == backoff.Stop {
			return body, status, err
		}

		select {
		case <-ctx.Done():
			return body, status, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) isTransient(status int, networkErr error) bool {
	if networkErr == nil && status >= 200 && status < 300 {
		return false
	}
	classified := c.strategy.Classify(provider.ErrorContext{
		HTTPStatus:   status,
		NetworkError: networkErr != nil,
	})
	return classified.Kind == brokererrors.KindTransient
}
