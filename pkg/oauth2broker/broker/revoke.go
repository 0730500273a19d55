package broker

import (
	"context"
	"time"

	"github.com/stacklok/oauth2broker/pkg/logger"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// Revoke marks the cached record at (tenant, principal, scope) revoked and
// best-effort notifies the provider via RFC 7009. A remote revocation
// failure is logged, never propagated — the local store is authoritative
// for every flow in this package, so an unreachable or uncooperative
// provider must not prevent the family from being treated as dead.
func (b *Broker) Revoke(ctx context.Context, tenant ids.TenantId, principal ids.PrincipalId, scope *ids.ScopeSet) (tokenrecord.TokenRecord, error) {
	family := ids.NewTokenFamily(tenant, principal, b.descriptor.ID())
	key := ids.NewStoreKey(family, scope).String()

	result, err, _ := b.guard.do(key, func() (any, error) {
		current, ok, err := b.store.Fetch(ctx, family, scope)
		if err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "fetching token record to revoke", err)
		}
		if ok {
			if revokeErr := b.facade.RevokeRemote(ctx, current.Refresh, "refresh_token"); revokeErr != nil {
				logger.Warnw("remote refresh token revocation failed", "family", family.String(), "error", revokeErr)
			}
			if revokeErr := b.facade.RevokeRemote(ctx, current.Access, "access_token"); revokeErr != nil {
				logger.Warnw("remote access token revocation failed", "family", family.String(), "error", revokeErr)
			}
		}

		record, ok, err := b.store.Revoke(ctx, family, scope, time.Now().UTC())
		if err != nil {
			return tokenrecord.TokenRecord{}, brokererrors.Wrap(brokererrors.KindStorage, "revoking token record", err)
		}
		if !ok {
			return tokenrecord.TokenRecord{}, brokererrors.InvalidGrant("No cached token record exists for this family and scope.")
		}
		return record, nil
	})
	if err != nil {
		return tokenrecord.TokenRecord{}, err
	}
	return result.(tokenrecord.TokenRecord), nil
}
