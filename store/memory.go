package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Records are lost on process restart.
type MemoryStore struct {
	mu       sync.Mutex
	actors   map[string]*ActorRecord
	counters map[string]*CounterRecord
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:   make(map[string]*ActorRecord),
		counters: make(map[string]*CounterRecord),
		now:      time.Now,
	}
}

// Record adds key to the actor's seen set and increments its counter under a
// single lock, so both changes become visible together.
func (m *MemoryStore) Record(ctx context.Context, actorID, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[actorID]
	if ok && a.Has(key) {
		return false, nil
	}

	ts := Native(m.now())
	if !ok {
		a = &ActorRecord{ID: actorID, CreatedAt: ts}
		m.actors[actorID] = a
	}
	a.SeenKeys = addKey(a.SeenKeys, key)
	a.UpdatedAt = ts

	c, ok := m.counters[key]
	if !ok {
		c = &CounterRecord{Key: key, CreatedAt: ts}
		m.counters[key] = c
	}
	c.Count++
	c.UpdatedAt = ts

	return true, nil
}

// Actor returns a copy of the record for actorID.
func (m *MemoryStore) Actor(_ context.Context, actorID string) (ActorRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[actorID]
	if !ok {
		return ActorRecord{}, false, nil
	}
	out := *a
	out.SeenKeys = slices.Clone(a.SeenKeys)
	return out, true, nil
}

// Counter returns a copy of the counter for key.
func (m *MemoryStore) Counter(_ context.Context, key string) (CounterRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok {
		return CounterRecord{}, false, nil
	}
	return *c, true, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
