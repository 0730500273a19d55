package store

import (
	"context"
	"sync"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// MemoryStore is the in-memory reference BrokerStore backend: an ordered
// map guarded by a reader-writer lock, per spec §6.1. It satisfies the
// CAS contract exactly but offers no durability across process restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]tokenrecord.TokenRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]tokenrecord.TokenRecord{}}
}

var _ BrokerStore = (*MemoryStore)(nil)

// Save implements BrokerStore.
func (s *MemoryStore) Save(_ context.Context, record tokenrecord.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(key(record.Family, record.Scope), record)
	return nil
}

// Fetch implements BrokerStore.
func (s *MemoryStore) Fetch(_ context.Context, family ids.TokenFamily, scope *ids.ScopeSet) (tokenrecord.TokenRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key(family, scope)]
	return record, ok, nil
}

// CompareAndSwapRefresh implements BrokerStore.
func (s *MemoryStore) CompareAndSwapRefresh(
	_ context.Context,
	family ids.TokenFamily,
	scope *ids.ScopeSet,
	expected tokenrecord.TokenSecret,
	expectedOk bool,
	replacement tokenrecord.TokenRecord,
) (CASOutcome, tokenrecord.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(family, scope)
	current, exists := s.records[k]
	if !exists {
		return Missing, tokenrecord.TokenRecord{}, nil
	}

	currentOk := !current.Refresh.IsZero()
	matches := currentOk == expectedOk && (!currentOk || current.Refresh.Equal(expected))
	if !matches {
		return RefreshMismatch, current, nil
	}

	s.insertLocked(k, replacement)
	return Updated, replacement, nil
}

// Revoke implements BrokerStore.
func (s *MemoryStore) Revoke(_ context.Context, family ids.TokenFamily, scope *ids.ScopeSet, instant time.Time) (tokenrecord.TokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(family, scope)
	current, exists := s.records[k]
	if !exists {
		return tokenrecord.TokenRecord{}, false, nil
	}

	revoked := current.Revoke(instant)
	s.records[k] = revoked
	return revoked, true, nil
}

func (s *MemoryStore) insertLocked(k string, record tokenrecord.TokenRecord) {
	if _, exists := s.records[k]; !exists {
		s.order = append(s.order, k)
	}
	s.records[k] = record
}

// Snapshot returns a copy of every persisted record in insertion order.
// The file backend does not use it; it serializes through its own
// snapshotEntries, which also keeps each record's key.
func (s *MemoryStore) Snapshot() []tokenrecord.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tokenrecord.TokenRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k])
	}
	return out
}
