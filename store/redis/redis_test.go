package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ryhazerus/tally/store"
	"github.com/ryhazerus/tally/store/storetest"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestRedisStore(t)
		return s
	})
}

func TestRedisStoreKeyLayout(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, "u1", "file42"); err != nil {
		t.Fatal(err)
	}

	if ok, _ := mr.SIsMember("tally:seen:u1", "file42"); !ok {
		t.Error("seen set does not contain file42")
	}
	if got := mr.HGet("tally:counter:file42", "count"); got != "1" {
		t.Errorf("counter hash count = %q, want 1", got)
	}
}

func TestRedisStoreServerError(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.SetError("LOADING server is loading")

	if _, err := s.Record(context.Background(), "u1", "file42"); err == nil {
		t.Fatal("expected error while server rejects commands")
	}
}

func TestRedisStoreActorAndSeenKeysDistinct(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	// The actor "a:seen" must not land on the seen set of actor "a".
	for _, id := range []string{"a", "a:seen"} {
		if _, err := s.Record(ctx, id, "k1"); err != nil {
			t.Fatalf("record(%s): %v", id, err)
		}
	}

	if ok, _ := mr.SIsMember("tally:seen:a", "k1"); !ok {
		t.Error("seen set of a does not contain k1")
	}
	if ok, _ := mr.SIsMember("tally:seen:a:seen", "k1"); !ok {
		t.Error("seen set of a:seen does not contain k1")
	}
	if got := mr.HGet("tally:counter:k1", "count"); got != "2" {
		t.Errorf("counter hash count = %q, want 2", got)
	}
}

func TestRedisStoreFailedRecordLeavesNoMembership(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	// A foreign string value where the counter hash belongs makes HINCRBY fail.
	if err := mr.Set("tally:counter:k1", "x"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		recorded, err := s.Record(ctx, "u1", "k1")
		if err == nil {
			t.Fatalf("attempt %d: expected WRONGTYPE error", i+1)
		}
		if recorded {
			t.Errorf("attempt %d: recorded = true, want false", i+1)
		}
	}

	if mr.Exists("tally:seen:u1") {
		t.Error("seen set written despite failed record")
	}
	if mr.Exists("tally:actor:u1") {
		t.Error("actor hash written despite failed record")
	}
	if _, ok, err := s.Actor(ctx, "u1"); err != nil || ok {
		t.Errorf("actor u1: ok = %v, err = %v; want absent", ok, err)
	}
}
