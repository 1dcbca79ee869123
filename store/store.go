package store

import (
	"context"
	"errors"
	"slices"
)

// ErrConflict reports that a transaction lost a race with a concurrent writer
// and may succeed if retried.
var ErrConflict = errors.New("tally/store: transaction conflict")

// ActorRecord holds the set of event keys an actor has triggered.
type ActorRecord struct {
	ID        string
	SeenKeys  []string // sorted, no duplicates
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Has reports whether the actor has already triggered key.
func (a ActorRecord) Has(key string) bool {
	_, ok := slices.BinarySearch(a.SeenKeys, key)
	return ok
}

// CounterRecord holds the number of distinct actors that triggered a key.
type CounterRecord struct {
	Key       string
	Count     int64
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Store defines the interface for event recording backends.
type Store interface {
	// Record atomically adds key to the actor's seen set and increments the
	// key's counter. If the actor has already seen key, nothing is written
	// and recorded is false.
	Record(ctx context.Context, actorID, key string) (recorded bool, err error)

	// Actor returns the record for actorID. ok is false if it does not exist.
	Actor(ctx context.Context, actorID string) (rec ActorRecord, ok bool, err error)

	// Counter returns the counter for key. ok is false if it does not exist.
	Counter(ctx context.Context, key string) (rec CounterRecord, ok bool, err error)

	// Close releases any resources held by the store.
	Close() error
}

// addKey inserts key into the sorted set keys and returns the result.
func addKey(keys []string, key string) []string {
	i, ok := slices.BinarySearch(keys, key)
	if ok {
		return keys
	}
	return slices.Insert(keys, i, key)
}
