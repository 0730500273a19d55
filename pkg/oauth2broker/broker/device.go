package broker

import (
	"context"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// DeviceAuthorization is the broker-level handle returned by
// StartDeviceAuthorization and consumed by PollDeviceToken.
type DeviceAuthorization struct {
	Family          ids.TokenFamily
	Scope           *ids.ScopeSet
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
	Interval        time.Duration
}

// StartDeviceAuthorization begins an RFC 8628 device flow, returning the
// user_code/verification_uri the caller must display. Fails with
// UnsupportedGrant if the provider descriptor does not enable
// device_code.
func (b *Broker) StartDeviceAuthorization(
	ctx context.Context,
	tenant ids.TenantId,
	principal ids.PrincipalId,
	scope *ids.ScopeSet,
) (*DeviceAuthorization, error) {
	if !b.descriptor.EnablesGrant(provider.GrantDeviceCode) {
		return nil, brokererrors.UnsupportedGrant(string(provider.GrantDeviceCode))
	}

	resp, err := b.facade.StartDeviceAuthorization(ctx, scope)
	if err != nil {
		return nil, err
	}

	family := ids.NewTokenFamily(tenant, principal, b.descriptor.ID())
	now := time.Now().UTC()
	var expiresAt time.Time
	if resp.ExpiresIn > 0 {
		expiresAt = now.Add(resp.ExpiresIn)
	}

	return &DeviceAuthorization{
		Family:          family,
		Scope:           scope,
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresAt:       expiresAt,
		Interval:        resp.Interval,
	}, nil
}

// PollDeviceToken blocks, polling the token endpoint at session.Interval
// (or overrideInterval, if nonzero), until the user completes the
// verification step, the session expires, the context is canceled, or
// the provider returns a terminal (non-Transient) error. Concurrent polls
// for the same family+scope share one singleflight guard, same as
// ClientCredentials.
func (b *Broker) PollDeviceToken(ctx context.Context, session *DeviceAuthorization, overrideInterval time.Duration) (tokenrecord.TokenRecord, error) {
	const grant = string(provider.GrantDeviceCode)

	key := ids.NewStoreKey(session.Family, session.Scope).String()
	interval := session.Interval
	if overrideInterval > 0 {
		interval = overrideInterval
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, end := b.tracer.StartFlow(ctx, grant, "device_code")
	b.metrics.Attempt(grant)

	result, err, _ := b.guard.do(key, func() (any, error) {
		return b.pollDeviceTokenLocked(ctx, session, interval)
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

func (b *Broker) pollDeviceTokenLocked(ctx context.Context, session *DeviceAuthorization, interval time.Duration) (tokenrecord.TokenRecord, error) {
	for {
		if !session.ExpiresAt.IsZero() && time.Now().UTC().After(session.ExpiresAt) {
			return tokenrecord.TokenRecord{}, brokererrors.InvalidGrant("Device authorization session expired before completion.")
		}

		record, err := b.facade.PollDeviceToken(ctx, session.Family, session.Scope, session.DeviceCode)
		if err == nil {
			if saveErr := b.store.Save(ctx, record); saveErr != nil {
				return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "saving device-flow token record", saveErr)
			}
			return record, nil
		}
		if !brokererrors.Is(err, brokererrors.KindTransient) {
			return tokenrecord.TokenRecord{}, err
		}

		select {
		case <-ctx.Done():
			return tokenrecord.TokenRecord{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

