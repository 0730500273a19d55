// Package brokerclient adapts a *broker.Broker into golang.org/x/oauth2's
// TokenSource interface, so broker-managed tokens drop directly into any
// oauth2-aware HTTP client (oauth2.NewClient, oauth2.Transport) without
// the caller ever seeing a TokenRecord.
package brokerclient

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/broker"
)

const bearerTokenType = "Bearer"

// TokenSourceAdapter wraps a *broker.Broker and a fixed CachedTokenRequest
// template into an oauth2.TokenSource. Each Token() call re-runs the
// broker flow, so the broker's own caching and preemptive refresh apply
// transparently — callers never need oauth2.ReuseTokenSource wrapping
// this, since the broker is already doing that job.
type TokenSourceAdapter struct {
	ctx     context.Context
	broker  *broker.Broker
	request broker.CachedTokenRequest
	refresh bool
}

// NewClientCredentialsTokenSource returns a TokenSource that calls
// Broker.ClientCredentials on every Token() call. The returned token
// never carries a RefreshToken, since client_credentials tokens have none.
func NewClientCredentialsTokenSource(ctx context.Context, b *broker.Broker, request broker.CachedTokenRequest) *TokenSourceAdapter {
	return &TokenSourceAdapter{ctx: ctx, broker: b, request: request}
}

// NewRefreshTokenSource returns a TokenSource that calls
// Broker.RefreshAccessToken on every Token() call. The returned token
// carries RefreshToken, exposed via TokenSecret.Expose() at this
// boundary and nowhere else in this package.
func NewRefreshTokenSource(ctx context.Context, b *broker.Broker, request broker.CachedTokenRequest) *TokenSourceAdapter {
	return &TokenSourceAdapter{ctx: ctx, broker: b, request: request, refresh: true}
}

// Token implements oauth2.TokenSource. Errors are returned verbatim from
// the broker (never re-wrapped), so callers can still branch with
// brokererrors.Is against the result.
func (a *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	if a.refresh {
		record, err := a.broker.RefreshAccessToken(a.ctx, a.request)
		if err != nil {
			return nil, err
		}
		token := &oauth2.Token{
			AccessToken: record.Access.Expose(),
			TokenType:   bearerTokenType,
			Expiry:      record.ExpiresAt,
		}
		if !record.Refresh.IsZero() {
			token.RefreshToken = record.Refresh.Expose()
		}
		return token, nil
	}

	record, err := a.broker.ClientCredentials(a.ctx, a.request)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: record.Access.Expose(),
		TokenType:   bearerTokenType,
		Expiry:      record.ExpiresAt,
	}, nil
}

var _ oauth2.TokenSource = (*TokenSourceAdapter)(nil)
