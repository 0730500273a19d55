package broker

import (
	"hash/fnv"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

const defaultPreemptiveWindow = 60 * time.Second

// CachedTokenRequest is the ephemeral parameter set for a single
// client_credentials or refresh_access_token call.
type CachedTokenRequest struct {
	Tenant           ids.TenantId
	Principal        ids.PrincipalId
	Scope            *ids.ScopeSet
	Force            bool
	PreemptiveWindow time.Duration
}

// window returns the PreemptiveWindow clamped to ≥ 0, defaulting
// to 60 seconds when unset.
func (r CachedTokenRequest) window() time.Duration {
	if r.PreemptiveWindow < 0 {
		return 0
	}
	if r.PreemptiveWindow == 0 {
		return defaultPreemptiveWindow
	}
	return r.PreemptiveWindow
}

// shouldRefresh reports whether record must be refreshed before serving
// it: forced, revoked, already expired, or within its jittered preemptive
// window.
func (r CachedTokenRequest) shouldRefresh(record tokenrecord.TokenRecord, now time.Time) bool {
	if r.Force || record.IsRevoked() || record.IsExpiredAt(now) {
		return true
	}

	window := r.window()
	jitter := deterministicJitter(r.Tenant, r.Principal, r.Scope, window)
	effective := window - jitter
	if effective < 0 {
		effective = 0
	}

	return record.ExpiresAt.Sub(now) <= effective
}

// deterministicJitter computes a stable, non-random offset within
// [0, window) from the (tenant, principal, scope) tuple, so repeated
// evaluations of the same request are stable but different tuples
// stagger their refresh decisions.
func deterministicJitter(tenant ids.TenantId, principal ids.PrincipalId, scope *ids.ScopeSet, window time.Duration) time.Duration {
	windowSeconds := int64(window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(tenant.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(principal.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(scope.Fingerprint()))

	mod := int64(h.Sum64() % uint64(windowSeconds))
	return time.Duration(mod) * time.Second
}
