package broker

import "golang.org/x/sync/singleflight"

// guardRegistry serializes concurrent broker operations against the same
// StoreKey through a single shared singleflight.Group, keyed by
// StoreKey.String(), without the broker having to manage map growth or
// eviction itself — singleflight.Group already collapses concurrent
// callers of the same key into one in-flight call and forgets the key
// the instant it completes.
type guardRegistry struct {
	group singleflight.Group
}

// do runs fn for key, collapsing concurrent callers sharing key into a
// single execution; every caller observes the same (result, error).
func (g *guardRegistry) do(key string, fn func() (any, error)) (any, error, bool) {
	return g.group.Do(key, fn)
}
