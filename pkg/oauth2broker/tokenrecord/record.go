// Package tokenrecord holds the immutable, lifecycle-aware description of
// an issued token pair: the secrets themselves, the family and scope that
// identify them, and the timestamps that determine whether the record is
// Pending, Active, Expired, or Revoked against a given clock reading.
package tokenrecord

import (
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
)

// Status is the lifecycle state of a TokenRecord evaluated at a point in
// time. It is never stored directly — it is always derived from the
// record's timestamps via Status.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// TokenRecord is the broker's persisted representation of an exchanged
// token pair. It is built once by the facade on a successful exchange and
// thereafter mutated only by Revoke; stores persist it verbatim.
type TokenRecord struct {
	Family    ids.TokenFamily
	Scope     *ids.ScopeSet
	Access    TokenSecret
	Refresh   TokenSecret
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Builder assembles a TokenRecord from either an absolute expiry or a
// relative one, mirroring the facade's normalization of a token response.
type Builder struct {
	family    ids.TokenFamily
	scope     *ids.ScopeSet
	access    TokenSecret
	refresh   TokenSecret
	issuedAt  time.Time
	expiresAt *time.Time
	expiresIn *time.Duration
}

// NewBuilder starts a TokenRecord builder for the given family and scope,
// with issuedAt defaulting to now if never overridden via IssuedAt.
func NewBuilder(family ids.TokenFamily, scope *ids.ScopeSet) *Builder {
	return &Builder{family: family, scope: scope, issuedAt: time.Now().UTC()}
}

// Access sets the access token secret.
func (b *Builder) Access(secret TokenSecret) *Builder {
	b.access = secret
	return b
}

// Refresh sets the optional refresh token secret.
func (b *Builder) Refresh(secret TokenSecret) *Builder {
	b.refresh = secret
	return b
}

// IssuedAt overrides the issued_at timestamp; defaults to time.Now().UTC()
// at builder construction.
func (b *Builder) IssuedAt(instant time.Time) *Builder {
	b.issuedAt = instant
	return b
}

// ExpiresAt sets an absolute expiry. If both ExpiresAt and ExpiresIn are
// supplied, ExpiresAt wins.
func (b *Builder) ExpiresAt(instant time.Time) *Builder {
	b.expiresAt = &instant
	return b
}

// ExpiresIn sets a relative expiry, applied against issuedAt unless an
// absolute ExpiresAt is also supplied.
func (b *Builder) ExpiresIn(d time.Duration) *Builder {
	b.expiresIn = &d
	return b
}

// Build validates and constructs the TokenRecord, failing with
// brokererrors.ErrMissingAccessToken or brokererrors.ErrMissingExpiry per
// the lifecycle contract.
func (b *Builder) Build() (TokenRecord, error) {
	if b.access.IsZero() {
		return TokenRecord{}, brokererrors.ErrMissingAccessToken
	}

	var expiresAt time.Time
	switch {
	case b.expiresAt != nil:
		expiresAt = *b.expiresAt
	case b.expiresIn != nil:
		expiresAt = b.issuedAt.Add(*b.expiresIn)
	default:
		return TokenRecord{}, brokererrors.ErrMissingExpiry
	}

	return TokenRecord{
		Family:    b.family,
		Scope:     b.scope,
		Access:    b.access,
		Refresh:   b.refresh,
		IssuedAt:  b.issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Status computes the lifecycle state of the record at now, per the
// precedence: Revoked takes priority over everything, then Pending (not
// yet issued), then Expired, then Active.
func (r TokenRecord) Status(now time.Time) Status {
	if r.RevokedAt != nil {
		return StatusRevoked
	}
	if now.Before(r.IssuedAt) {
		return StatusPending
	}
	if !now.Before(r.ExpiresAt) {
		return StatusExpired
	}
	return StatusActive
}

// IsRevoked reports whether the record has ever been revoked.
func (r TokenRecord) IsRevoked() bool { return r.RevokedAt != nil }

// IsExpiredAt reports whether the record's expiry has passed at now,
// independent of revocation.
func (r TokenRecord) IsExpiredAt(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// Revoke sets revoked_at to instant. Calling it again overwrites the
// timestamp but the record remains Revoked regardless of which instant is
// recorded — the status check only tests RevokedAt != nil.
func (r TokenRecord) Revoke(instant time.Time) TokenRecord {
	r.RevokedAt = &instant
	return r
}

// WithRefresh returns a copy of r carrying a different refresh secret,
// used by the broker to preserve an old refresh secret when a provider's
// response omits a rotated one.
func (r TokenRecord) WithRefresh(secret TokenSecret) TokenRecord {
	r.Refresh = secret
	return r
}
