package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ryhazerus/tally/store"
	"github.com/ryhazerus/tally/store/storetest"
)

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.db")
	ctx := context.Background()

	s1, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Record(ctx, "u1", "file42")
	s1.Record(ctx, "u2", "file42")
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	c, ok, err := s2.Counter(ctx, "file42")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || c.Count != 2 {
		t.Errorf("after reopen: count = %d (found %v), want 2", c.Count, ok)
	}

	recorded, err := s2.Record(ctx, "u1", "file42")
	if err != nil {
		t.Fatal(err)
	}
	if recorded {
		t.Error("u1 re-recorded after reopen")
	}
}

func TestSQLiteStoreEpochMillisTimestamps(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Record(ctx, "u1", "k")
	c, _, err := s.Counter(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if c.CreatedAt.UnixMilli() <= 0 {
		t.Errorf("created_at = %d, want positive epoch millis", c.CreatedAt.UnixMilli())
	}
}
