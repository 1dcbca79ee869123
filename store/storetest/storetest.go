// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ryhazerus/tally/store"
)

// Factory returns a fresh, empty store. It should register cleanup with t.
type Factory func(t *testing.T) store.Store

// Run exercises the behaviour every Store must provide.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"FirstRecord", testFirstRecord},
		{"Idempotent", testIdempotent},
		{"IsolationAcrossActors", testIsolationAcrossActors},
		{"IsolationAcrossKeys", testIsolationAcrossKeys},
		{"ConcurrentDuplicates", testConcurrentDuplicates},
		{"ConcurrentDistinctActors", testConcurrentDistinctActors},
		{"MissingRecords", testMissingRecords},
		{"SeparatorIDs", testSeparatorIDs},
		{"Timestamps", testTimestamps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testFirstRecord(t *testing.T, s store.Store) {
	ctx := context.Background()

	recorded, err := s.Record(ctx, "u1", "file42")
	if err != nil {
		t.Fatal(err)
	}
	if !recorded {
		t.Fatal("first record: recorded = false, want true")
	}

	a, ok, err := s.Actor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("actor u1 not found")
	}
	if !slices.Equal(a.SeenKeys, []string{"file42"}) {
		t.Errorf("seen keys = %v, want [file42]", a.SeenKeys)
	}

	wantCount(t, s, "file42", 1)
}

func testIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		recorded, err := s.Record(ctx, "u1", "file42")
		if err != nil {
			t.Fatal(err)
		}
		if recorded != (i == 0) {
			t.Errorf("call %d: recorded = %v, want %v", i+1, recorded, i == 0)
		}
	}

	a, _, err := s.Actor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.SeenKeys, []string{"file42"}) {
		t.Errorf("seen keys = %v, want [file42]", a.SeenKeys)
	}
	wantCount(t, s, "file42", 1)
}

func testIsolationAcrossActors(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustRecord(t, s, "u1", "file42")
	mustRecord(t, s, "u2", "file42")
	mustRecord(t, s, "u1", "file42")

	wantCount(t, s, "file42", 2)
	for _, id := range []string{"u1", "u2"} {
		a, ok, err := s.Actor(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || !a.Has("file42") {
			t.Errorf("actor %s: want file42 in %v", id, a.SeenKeys)
		}
	}
}

func testIsolationAcrossKeys(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustRecord(t, s, "u1", "k1")

	if _, ok, err := s.Counter(ctx, "k2"); err != nil || ok {
		t.Fatalf("counter k2: ok = %v, err = %v; want absent", ok, err)
	}

	mustRecord(t, s, "u1", "k2")
	wantCount(t, s, "k1", 1)
	wantCount(t, s, "k2", 1)

	a, _, err := s.Actor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.SeenKeys, []string{"k1", "k2"}) {
		t.Errorf("seen keys = %v, want [k1 k2]", a.SeenKeys)
	}
}

func testConcurrentDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorded, err := retryConflict(func() (bool, error) {
				return s.Record(ctx, "u1", "file42")
			})
			if err != nil {
				t.Error(err)
				return
			}
			results <- recorded
		}()
	}
	wg.Wait()
	close(results)

	var recorded int
	for r := range results {
		if r {
			recorded++
		}
	}
	if recorded != 1 {
		t.Errorf("recorded = %d, want exactly 1", recorded)
	}
	wantCount(t, s, "file42", 1)
}

func testConcurrentDistinctActors(t *testing.T, s store.Store) {
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := retryConflict(func() (bool, error) {
				return s.Record(ctx, fmt.Sprintf("actor-%d", i), "file42")
			}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	wantCount(t, s, "file42", n)
}

func testMissingRecords(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, ok, err := s.Actor(ctx, "nobody"); err != nil || ok {
		t.Errorf("actor: ok = %v, err = %v; want absent", ok, err)
	}
	if _, ok, err := s.Counter(ctx, "nothing"); err != nil || ok {
		t.Errorf("counter: ok = %v, err = %v; want absent", ok, err)
	}
}

// testSeparatorIDs uses ids that contain the separators a backend might use
// to build its own keys. Every pair must stay independent.
func testSeparatorIDs(t *testing.T, s store.Store) {
	ctx := context.Background()

	pairs := []struct{ actor, key string }{
		{"a", "k:1"},
		{"a:seen", "k1"},
		{"a:seen", "counter:k1"},
		{"seen:a", "a:seen"},
	}
	for _, p := range pairs {
		recorded, err := s.Record(ctx, p.actor, p.key)
		if err != nil {
			t.Fatalf("record(%s, %s): %v", p.actor, p.key, err)
		}
		if !recorded {
			t.Errorf("record(%s, %s): recorded = false, want true", p.actor, p.key)
		}
	}

	wantSeen := map[string][]string{
		"a":      {"k:1"},
		"a:seen": {"counter:k1", "k1"},
		"seen:a": {"a:seen"},
	}
	for id, want := range wantSeen {
		a, ok, err := s.Actor(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("actor %s not found", id)
		}
		if !slices.Equal(a.SeenKeys, want) {
			t.Errorf("actor %s: seen keys = %v, want %v", id, a.SeenKeys, want)
		}
	}
	for _, key := range []string{"k:1", "k1", "counter:k1", "a:seen"} {
		wantCount(t, s, key, 1)
	}
}

func testTimestamps(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustRecord(t, s, "u1", "k1")
	first, _, err := s.Actor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatalf("actor timestamps unset: %v %v", first.CreatedAt, first.UpdatedAt)
	}

	mustRecord(t, s, "u1", "k2")
	second, _, err := s.Actor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CreatedAt.Time().Equal(first.CreatedAt.Time()) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Time().Before(first.UpdatedAt.Time()) {
		t.Errorf("updated_at went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	c, _, err := s.Counter(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Errorf("counter timestamps unset: %v %v", c.CreatedAt, c.UpdatedAt)
	}
}

func mustRecord(t *testing.T, s store.Store, actorID, key string) {
	t.Helper()
	if _, err := s.Record(context.Background(), actorID, key); err != nil {
		t.Fatalf("record(%s, %s): %v", actorID, key, err)
	}
}

func wantCount(t *testing.T, s store.Store, key string, want int64) {
	t.Helper()
	c, ok, err := s.Counter(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("counter %s not found", key)
	}
	if c.Count != want {
		t.Errorf("count(%s) = %d, want %d", key, c.Count, want)
	}
}

// retryConflict repeats fn while it reports store.ErrConflict, the way the
// recorder does.
func retryConflict(fn func() (bool, error)) (bool, error) {
	for attempt := 0; ; attempt++ {
		ok, err := fn()
		if err == nil || !errors.Is(err, store.ErrConflict) || attempt == 50 {
			return ok, err
		}
	}
}
