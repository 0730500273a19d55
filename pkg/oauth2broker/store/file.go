package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
)

// FileStore is a BrokerStore backend that persists the full record set to
// a JSON array of (StoreKey, TokenRecord) pairs on disk, guarded by an
// advisory file lock so multiple broker processes sharing one file don't
// corrupt each other's writes. Token secrets are stored verbatim;
// encrypting the file at rest is the operator's responsibility.
type FileStore struct {
	path string
	lock *flock.Flock
	mem  *MemoryStore
}

// persistedEntry pairs a store key with its record. TokenFamily's
// identifier fields and ScopeSet already carry their own
// MarshalJSON/UnmarshalJSON (see the ids package), so Record round-trips
// through encoding/json on its own.
type persistedEntry struct {
	Key    string                  `json:"key"`
	Record tokenrecord.TokenRecord `json:"record"`
}

// NewFileStore opens (or creates) the JSON file at path and loads any
// existing records into memory.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		mem:  NewMemoryStore(),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

var _ BrokerStore = (*FileStore)(nil)

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("oauth2broker/store: reading %s: %w", fs.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []persistedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("oauth2broker/store: decoding %s: %w", fs.path, err)
	}
	for _, e := range entries {
		fs.mem.insertLocked(e.Key, e.Record)
	}
	return nil
}

// Save implements BrokerStore.
func (fs *FileStore) Save(ctx context.Context, record tokenrecord.TokenRecord) error {
	if err := fs.mem.Save(ctx, record); err != nil {
		return err
	}
	return fs.flush(ctx)
}

// Fetch implements BrokerStore.
func (fs *FileStore) Fetch(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet) (tokenrecord.TokenRecord, bool, error) {
	return fs.mem.Fetch(ctx, family, scope)
}

// CompareAndSwapRefresh implements BrokerStore.
func (fs *FileStore) CompareAndSwapRefresh(
	ctx context.Context,
	family ids.TokenFamily,
	scope *ids.ScopeSet,
	expected tokenrecord.TokenSecret,
	expectedOk bool,
	replacement tokenrecord.TokenRecord,
) (CASOutcome, tokenrecord.TokenRecord, error) {
	outcome, current, err := fs.mem.CompareAndSwapRefresh(ctx, family, scope, expected, expectedOk, replacement)
	if err != nil || outcome != Updated {
		return outcome, current, err
	}
	if err := fs.flush(ctx); err != nil {
		return outcome, current, err
	}
	return outcome, current, nil
}

// Revoke implements BrokerStore.
func (fs *FileStore) Revoke(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, instant time.Time) (tokenrecord.TokenRecord, bool, error) {
	record, ok, err := fs.mem.Revoke(ctx, family, scope, instant)
	if err != nil || !ok {
		return record, ok, err
	}
	if err := fs.flush(ctx); err != nil {
		return record, ok, err
	}
	return record, ok, nil
}

// flush serializes the in-memory snapshot to a temp file and renames it
// over the real path, guarded by an advisory lock so concurrent broker
// processes sharing this file never observe a half-written file.
func (fs *FileStore) flush(ctx context.Context) error {
	locked, err := fs.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("oauth2broker/store: acquiring file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("oauth2broker/store: could not acquire file lock on %s", fs.path)
	}
	defer fs.lock.Unlock()

	entries := fs.snapshotEntries()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("oauth2broker/store: encoding snapshot: %w", err)
	}

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".oauth2broker-store-*.tmp")
	if err != nil {
		return fmt.Errorf("oauth2broker/store: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("oauth2broker/store: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("oauth2broker/store: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("oauth2broker/store: renaming temp file into place: %w", err)
	}
	return nil
}

func (fs *FileStore) snapshotEntries() []persistedEntry {
	fs.mem.mu.RLock()
	defer fs.mem.mu.RUnlock()

	entries := make([]persistedEntry, 0, len(fs.mem.order))
	for _, k := range fs.mem.order {
		entries = append(entries, persistedEntry{Key: k, Record: fs.mem.records[k]})
	}
	return entries
}
