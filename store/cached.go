package store

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)

// CachedStore wraps a persistent backend with an in-process cache of known
// memberships. Seen sets only grow, so a cached membership never goes stale:
// repeated Record calls for a pair this process has already seen return
// without a backend transaction. Everything else passes through.
type CachedStore struct {
	persistent Store

	mu   sync.RWMutex
	seen map[string]map[string]struct{}
}

// NewCachedStore creates a CachedStore backed by the given persistent store.
func NewCachedStore(persistent Store) *CachedStore {
	return &CachedStore{
		persistent: persistent,
		seen:       make(map[string]map[string]struct{}),
	}
}

// Record short-circuits on a cached membership and otherwise delegates to the
// persistent store. The persistent store is the source of truth.
func (c *CachedStore) Record(ctx context.Context, actorID, key string) (bool, error) {
	if c.known(actorID, key) {
		return false, nil
	}

	recorded, err := c.persistent.Record(ctx, actorID, key)
	if err != nil {
		return false, err
	}

	// Either way the pair is now in the backend.
	c.remember(actorID, key)
	return recorded, nil
}

// Actor reads from the persistent store and backfills the membership cache.
func (c *CachedStore) Actor(ctx context.Context, actorID string) (ActorRecord, bool, error) {
	rec, ok, err := c.persistent.Actor(ctx, actorID)
	if err != nil || !ok {
		return rec, ok, err
	}
	for _, k := range rec.SeenKeys {
		c.remember(actorID, k)
	}
	return rec, true, nil
}

// Counter always reads from the persistent store; counts change under
// other writers.
func (c *CachedStore) Counter(ctx context.Context, key string) (CounterRecord, bool, error) {
	return c.persistent.Counter(ctx, key)
}

// Close closes the persistent backend. The cache needs no cleanup.
func (c *CachedStore) Close() error {
	return c.persistent.Close()
}

func (c *CachedStore) known(actorID, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[actorID][key]
	return ok
}

func (c *CachedStore) remember(actorID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.seen[actorID]
	if !ok {
		keys = make(map[string]struct{})
		c.seen[actorID] = keys
	}
	keys[key] = struct{}{}
}
