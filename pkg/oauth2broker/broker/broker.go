// Package broker implements the token broker's cache-aware flows:
// client_credentials and refresh_token exchange with per-key singleflight
// collapsing and compare-and-swap rotation, plus the authorization_code
// session/exchange pair. It is the orchestration layer every other
// oauth2broker package exists to serve.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/oauth2broker/pkg/logger"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokermetrics"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokertrace"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/facade"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/store"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// Broker drives every cached-token flow against a single provider. Build
// one Broker per provider a deployment talks to; each holds shared
// references to its store, descriptor, and facade, and its own guard
// registry so concurrent callers for the same (tenant, principal, scope)
// never issue more than one in-flight exchange.
type Broker struct {
	store      store.BrokerStore
	descriptor *provider.Descriptor
	facade     *facade.Facade
	clientID   string

	guard   guardRegistry
	metrics *brokermetrics.Metrics
	tracer  *brokertrace.Tracer
}

// Option configures optional Broker behavior beyond its required
// collaborators.
type Option func(*Broker)

// WithMetrics attaches a brokermetrics.Metrics instance; omitted, the
// broker runs without instrumentation.
func WithMetrics(m *brokermetrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithTracer attaches a brokertrace.Tracer; omitted, flows run under a
// no-op tracer.
func WithTracer(t *brokertrace.Tracer) Option {
	return func(b *Broker) { b.tracer = t }
}

// New constructs a Broker for a single provider. clientID is the OAuth
// client identifier the broker presents when building authorization URLs;
// the facade carries the credentials used for token-endpoint requests.
func New(st store.BrokerStore, descriptor *provider.Descriptor, fac *facade.Facade, clientID string, opts ...Option) *Broker {
	b := &Broker{
		store:      st,
		descriptor: descriptor,
		facade:     fac,
		clientID:   clientID,
		tracer:     brokertrace.New(nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ClientCredentials returns a cached, valid access token for (tenant,
// principal, scope), exchanging a fresh one only if the cached record is
// absent, expired, revoked, forced, or inside its jittered preemptive
// refresh window. Concurrent callers for the same key collapse onto a
// single exchange.
func (b *Broker) ClientCredentials(ctx context.Context, req CachedTokenRequest) (tokenrecord.TokenRecord, error) {
	const grant = string(provider.GrantClientCredentials)

	family := ids.NewTokenFamily(req.Tenant, req.Principal, b.descriptor.ID())
	key := ids.NewStoreKey(family, req.Scope).String()

	ctx, end := b.tracer.StartFlow(ctx, grant, "client_credentials")
	b.metrics.Attempt(grant)

	result, err, _ := b.guard.do(key, func() (any, error) {
		return b.clientCredentialsLocked(ctx, family, req)
	})
	if err != nil {
		b.metrics.Failure(grant, failureKind(err))
		end(err)
		return tokenrecord.TokenRecord{}, err
	}

	b.metrics.Success(grant)
	end(nil)
	return result.(tokenrecord.TokenRecord), nil
}

func (b *Broker) clientCredentialsLocked(ctx context.Context, family ids.TokenFamily, req CachedTokenRequest) (tokenrecord.TokenRecord, error) {
	current, ok, err := b.store.Fetch(ctx, family, req.Scope)
	if err != nil {
		return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "fetching cached token record", err)
	}

	now := time.Now().UTC()
	if ok && !req.shouldRefresh(current, now) {
		return current, nil
	}

	record, err := b.facade.ClientCredentials(ctx, family, req.Scope, nil)
	if err != nil {
		return tokenrecord.TokenRecord{}, err
	}

	if err := b.store.Save(ctx, record); err != nil {
		return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "saving exchanged token record", err)
	}
	return record, nil
}

// RefreshAccessToken returns a cached, valid access token for (tenant,
// principal, scope), rotating the refresh secret via compare-and-swap
// when the cached record needs refreshing. A provider response that
// classifies as InvalidGrant or Revoked triggers a best-effort local
// revoke of the cached record before the error is returned, since a
// rejected refresh token means the family is dead regardless of what the
// cache still believes.
func (b *Broker) RefreshAccessToken(ctx context.Context, req CachedTokenRequest) (tokenrecord.TokenRecord, error) {
	const grant = string(provider.GrantRefreshToken)

	family := ids.NewTokenFamily(req.Tenant, req.Principal, b.descriptor.ID())
	key := ids.NewStoreKey(family, req.Scope).String()

	ctx, end := b.tracer.StartFlow(ctx, grant, "refresh_token")
	b.metrics.Attempt(grant)

	result, err, _ := b.guard.do(key, func() (any, error) {
		return b.refreshAccessTokenLocked(ctx, family, req)
	})
	if err != nil {
		b.metrics.Failure(grant, failureKind(err))
		end(err)
		return tokenrecord.TokenRecord{}, err
	}

	b.metrics.Success(grant)
	end(nil)
	return result.(tokenrecord.TokenRecord), nil
}

func (b *Broker) refreshAccessTokenLocked(ctx context.Context, family ids.TokenFamily, req CachedTokenRequest) (tokenrecord.TokenRecord, error) {
	current, ok, err := b.store.Fetch(ctx, family, req.Scope)
	if err != nil {
		return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "fetching cached token record", err)
	}
	if !ok {
		return tokenrecord.TokenRecord{}, brokererrors.InvalidGrant("No cached token record exists for this family and scope.")
	}

	now := time.Now().UTC()
	if !req.shouldRefresh(current, now) {
		return current, nil
	}
	if current.Refresh.IsZero() {
		return tokenrecord.TokenRecord{}, brokererrors.ErrMissingRefreshToken
	}
	expected := current.Refresh

	result, err := b.facade.RefreshToken(ctx, family, req.Scope, expected)
	if err != nil {
		if brokererrors.Is(err, brokererrors.KindInvalidGrant) || brokererrors.Is(err, brokererrors.KindRevoked) {
			if _, _, revokeErr := b.store.Revoke(ctx, family, req.Scope, now); revokeErr != nil {
				logger.Warnw("best-effort local revoke after rejected refresh failed",
					"family", family.String(), "error", revokeErr)
			}
		}
		return tokenrecord.TokenRecord{}, err
	}

	replacement := result.Record
	if !result.RefreshRotated {
		replacement = replacement.WithRefresh(current.Refresh)
	}

	outcome, winner, err := b.store.CompareAndSwapRefresh(ctx, family, req.Scope, expected, true, replacement)
	if err != nil {
		return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "rotating refresh token record", err)
	}

	switch outcome {
	case store.Updated:
		return replacement, nil
	case store.Missing:
		if err := b.store.Save(ctx, replacement); err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "saving rotated token record", err)
		}
		return replacement, nil
	case store.RefreshMismatch:
		// A concurrent refresh already won and replaced the record we were
		// about to overwrite. The provider still issued us a valid token
		// pair on the old refresh secret, so surface whichever record the
		// store now holds rather than discard a successful exchange.
		refetched, ok, err := b.store.Fetch(ctx, family, req.Scope)
		if err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "re-fetching after refresh mismatch", err)
		}
		if ok {
			return refetched, nil
		}
		if err := b.store.Save(ctx, replacement); err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "saving token record after refresh mismatch", err)
		}
		return replacement, nil
	default:
		return tokenrecord.TokenRecord{}, fmt.Errorf("oauth2broker/broker: unrecognized CAS outcome %q", outcome)
	}
}

// StartAuthorization begins an authorization_code flow, returning the
// session the caller must hold until ExchangeCode is called with the
// provider's callback code. Fails with UnsupportedGrant if the provider
// descriptor does not enable authorization_code.
func (b *Broker) StartAuthorization(
	ctx context.Context,
	tenant ids.TenantId,
	principal ids.PrincipalId,
	scope *ids.ScopeSet,
	redirectURI string,
) (*AuthorizationSession, error) {
	_ = ctx
	if !b.descriptor.EnablesGrant(provider.GrantAuthorizationCode) {
		return nil, brokererrors.UnsupportedGrant(string(provider.GrantAuthorizationCode))
	}

	family := ids.NewTokenFamily(tenant, principal, b.descriptor.ID())
	return newAuthorizationSession(family, scope, redirectURI, b.descriptor, b.clientID)
}

// ExchangeCode completes an authorization_code flow, persisting and
// returning the resulting TokenRecord. Callers must have already verified
// session.ValidateState against the callback's state parameter.
func (b *Broker) ExchangeCode(ctx context.Context, session *AuthorizationSession, code string) (tokenrecord.TokenRecord, error) {
	const grant = string(provider.GrantAuthorizationCode)

	key := ids.NewStoreKey(session.Family, session.Scope).String()

	ctx, end := b.tracer.StartFlow(ctx, grant, "authorization_code")
	b.metrics.Attempt(grant)

	result, err, _ := b.guard.do(key, func() (any, error) {
		record, err := b.facade.AuthorizationCode(ctx, session.Family, session.Scope, code, session.Verifier, session.RedirectURI)
		if err != nil {
			return tokenrecord.TokenRecord{}, err
		}
		if err := b.store.Save(ctx, record); err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "saving exchanged token record", err)
		}
		return record, nil
	})
	if err != nil {
		b.metrics.Failure(grant, failureKind(err))
		end(err)
		return tokenrecord.TokenRecord{}, err
	}

	b.metrics.Success(grant)
	end(nil)
	return result.(tokenrecord.TokenRecord), nil
}

// failureKind extracts the broker error kind for metrics labeling,
// falling back to "unknown" for errors that never reached a classified
// *brokererrors.Error (e.g. a context cancellation).
func failureKind(err error) string {
	if kind, ok := brokererrors.KindOf(err); ok {
		return string(kind)
	}
	return "unknown"
}
