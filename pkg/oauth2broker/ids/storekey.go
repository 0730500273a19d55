package ids

// StoreKey defines record identity in a BrokerStore: the token family plus
// the fingerprint of the requested scope set. Two ScopeSets with the same
// members always produce the same StoreKey regardless of construction
// order, since the fingerprint is computed over the normalized set.
type StoreKey struct {
	Family           TokenFamily
	ScopeFingerprint string
}

// NewStoreKey derives a StoreKey for the given family and scope set.
func NewStoreKey(family TokenFamily, scope *ScopeSet) StoreKey {
	return StoreKey{Family: family, ScopeFingerprint: scope.Fingerprint()}
}

// String renders a stable textual key suitable for use as a map key or as
// the singleflight guard key.
func (k StoreKey) String() string {
	return k.Family.String() + "#" + k.ScopeFingerprint
}

// Equal reports whether two StoreKeys identify the same record.
func (k StoreKey) Equal(other StoreKey) bool {
	return k.Family.Equal(other.Family) && k.ScopeFingerprint == other.ScopeFingerprint
}
