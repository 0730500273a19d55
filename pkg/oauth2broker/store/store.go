// Package store defines the BrokerStore contract and its in-memory and
// file-backed implementations.
package store

import (
	"context"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// CASOutcome is the result of a compare-and-swap refresh operation.
type CASOutcome string

const (
	// Updated means the expected refresh secret matched and the record was
	// atomically replaced.
	Updated CASOutcome = "updated"
	// RefreshMismatch means a record existed but its refresh secret did
	// not match the expected value — a concurrent refresh already won.
	RefreshMismatch CASOutcome = "refresh_mismatch"
	// Missing means no record existed for the key; nothing was inserted.
	Missing CASOutcome = "missing"
)

// BrokerStore is the persistence contract every broker backend satisfies.
// All mutation goes through Save, CompareAndSwapRefresh, and Revoke so a
// distributed backend only needs those three to guarantee consistency.
type BrokerStore interface {
	// Save upserts record keyed by (family, scope fingerprint).
	Save(ctx context.Context, record tokenrecord.TokenRecord) error

	// Fetch returns the current record for (family, scope), and ok=false
	// if none exists.
	Fetch(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet) (record tokenrecord.TokenRecord, ok bool, err error)

	// CompareAndSwapRefresh atomically replaces the record at (family,
	// scope) with replacement if and only if the current record's refresh
	// secret exactly matches expected. expectedOk=false represents a
	// record with no refresh secret cached, matching only a current
	// record that itself has no refresh secret.
	CompareAndSwapRefresh(
		ctx context.Context,
		family ids.TokenFamily,
		scope *ids.ScopeSet,
		expected tokenrecord.TokenSecret,
		expectedOk bool,
		replacement tokenrecord.TokenRecord,
	) (outcome CASOutcome, current tokenrecord.TokenRecord, err error)

	// Revoke sets revoked_at = instant on the record at (family, scope),
	// returning the updated record, or ok=false if none exists.
	Revoke(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, instant time.Time) (record tokenrecord.TokenRecord, ok bool, err error)
}

// key is the internal map key type used by both backends; it reuses
// StoreKey.String() so two ScopeSets with identical members collapse to
// the same entry.
func key(family ids.TokenFamily, scope *ids.ScopeSet) string {
	return ids.NewStoreKey(family, scope).String()
}
