package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketActors   = []byte("actors")
	bucketCounters = []byte("counters")
)

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// BoltStore is a persistent Store backed by a bbolt file. Each Record call runs
// in a single read-write bbolt transaction; bbolt allows one writer at a time.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

type boltActor struct {
	SeenKeys  []string `json:"seen_keys"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

type boltCounter struct {
	Count     int64 `json:"count"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tally/store: bolt path is required")
	}

	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("tally/store: open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketActors, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tally/store: create buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Record adds key to the actor's seen set and increments the counter inside
// one bbolt update transaction.
func (s *BoltStore) Record(ctx context.Context, actorID, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var recorded bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		actors := tx.Bucket(bucketActors)
		counters := tx.Bucket(bucketCounters)

		var a boltActor
		found, err := getJSON(actors, actorID, &a)
		if err != nil {
			return err
		}
		if found && (ActorRecord{SeenKeys: a.SeenKeys}).Has(key) {
			return nil
		}

		var c boltCounter
		if _, err := getJSON(counters, key, &c); err != nil {
			return err
		}

		now := s.now().UnixMilli()
		if !found {
			a.CreatedAt = now
		}
		a.SeenKeys = addKey(a.SeenKeys, key)
		a.UpdatedAt = now

		if c.Count == 0 {
			c.CreatedAt = now
		}
		c.Count++
		c.UpdatedAt = now

		if err := putJSON(actors, actorID, a); err != nil {
			return err
		}
		if err := putJSON(counters, key, c); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tally/store: bolt record: %w", err)
	}
	return recorded, nil
}

// Actor returns the record for actorID.
func (s *BoltStore) Actor(ctx context.Context, actorID string) (ActorRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ActorRecord{}, false, err
	}

	var a boltActor
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx.Bucket(bucketActors), actorID, &a)
		return err
	})
	if err != nil {
		return ActorRecord{}, false, fmt.Errorf("tally/store: bolt read actor: %w", err)
	}
	if !found {
		return ActorRecord{}, false, nil
	}

	return ActorRecord{
		ID:        actorID,
		SeenKeys:  a.SeenKeys,
		CreatedAt: EpochMillis(a.CreatedAt),
		UpdatedAt: EpochMillis(a.UpdatedAt),
	}, true, nil
}

// Counter returns the counter for key.
func (s *BoltStore) Counter(ctx context.Context, key string) (CounterRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return CounterRecord{}, false, err
	}

	var c boltCounter
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx.Bucket(bucketCounters), key, &c)
		return err
	})
	if err != nil {
		return CounterRecord{}, false, fmt.Errorf("tally/store: bolt read counter: %w", err)
	}
	if !found {
		return CounterRecord{}, false, nil
	}

	return CounterRecord{
		Key:       key,
		Count:     c.Count,
		CreatedAt: EpochMillis(c.CreatedAt),
		UpdatedAt: EpochMillis(c.UpdatedAt),
	}, true, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return b.Put([]byte(key), data)
}
