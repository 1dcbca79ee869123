package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/tally/store"
)

// Compile-time interface check.
var _ store.Store = (*RedisStore)(nil)

// RedisStore is a Store backed by Redis. Each actor is a set of seen keys
// (tally:seen:<actor>) plus a hash of timestamps (tally:actor:<actor>); each
// counter is a hash (tally:counter:<key>) with fields "count", "created_at"
// and "updated_at". Timestamps are epoch milliseconds. Every record type has
// its own prefix, so no two ids share a Redis key.
//
// The keys touched by one Record call are not co-located by hash tag, so the
// store targets a single Redis node rather than a cluster.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// recordScript adds an event key to an actor's seen set and increments the
// key's counter, or does nothing if the actor has already seen the key.
// Returns 1 when recorded, 0 otherwise.
//
// Redis does not roll back a script that fails midway, so every check that
// can fail runs before the first write, and the seen-set SADD goes last.
//
// KEYS[1] = actor seen-set key
// KEYS[2] = actor hash key
// KEYS[3] = counter hash key
// ARGV[1] = event key
// ARGV[2] = now in epoch milliseconds
var recordScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
    return 0
end

for i = 2, 3 do
    local t = redis.call("TYPE", KEYS[i])["ok"]
    if t ~= "none" and t ~= "hash" then
        return redis.error_reply("WRONGTYPE " .. KEYS[i] .. " holds " .. t)
    end
end

redis.call("HSETNX", KEYS[2], "created_at", ARGV[2])
redis.call("HSET", KEYS[2], "updated_at", ARGV[2])

redis.call("HSETNX", KEYS[3], "created_at", ARGV[2])
redis.call("HINCRBY", KEYS[3], "count", 1)
redis.call("HSET", KEYS[3], "updated_at", ARGV[2])

redis.call("SADD", KEYS[1], ARGV[1])
return 1
`)

// Record runs recordScript. Redis runs a script without interleaving other
// commands, so Record never reports store.ErrConflict.
func (r *RedisStore) Record(ctx context.Context, actorID, key string) (bool, error) {
	keys := []string{seenKey(actorID), actorKey(actorID), counterKey(key)}
	result, err := recordScript.Run(ctx, r.client, keys, key, r.now().UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("tally/store/redis: record: %w", err)
	}
	return result == 1, nil
}

// Actor returns the record for actorID.
func (r *RedisStore) Actor(ctx context.Context, actorID string) (store.ActorRecord, bool, error) {
	var (
		members *redis.StringSliceCmd
		fields  *redis.MapStringStringCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		members = p.SMembers(ctx, seenKey(actorID))
		fields = p.HGetAll(ctx, actorKey(actorID))
		return nil
	})
	if err != nil {
		return store.ActorRecord{}, false, fmt.Errorf("tally/store/redis: actor: %w", err)
	}

	vals := fields.Val()
	if len(vals) == 0 {
		return store.ActorRecord{}, false, nil
	}

	createdAt, updatedAt, err := parseTimes(vals)
	if err != nil {
		return store.ActorRecord{}, false, err
	}

	keys := members.Val()
	sort.Strings(keys)

	return store.ActorRecord{
		ID:        actorID,
		SeenKeys:  keys,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, true, nil
}

// Counter returns the counter for key.
func (r *RedisStore) Counter(ctx context.Context, key string) (store.CounterRecord, bool, error) {
	vals, err := r.client.HGetAll(ctx, counterKey(key)).Result()
	if err != nil {
		return store.CounterRecord{}, false, fmt.Errorf("tally/store/redis: counter: %w", err)
	}

	if len(vals) == 0 {
		return store.CounterRecord{}, false, nil
	}

	count, err := strconv.ParseInt(vals["count"], 10, 64)
	if err != nil {
		return store.CounterRecord{}, false, fmt.Errorf("tally/store/redis: parse count: %w", err)
	}

	createdAt, updatedAt, err := parseTimes(vals)
	if err != nil {
		return store.CounterRecord{}, false, err
	}

	return store.CounterRecord{
		Key:       key,
		Count:     count,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, true, nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseTimes(vals map[string]string) (created, updated store.Timestamp, err error) {
	c, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return created, updated, fmt.Errorf("tally/store/redis: parse created_at: %w", err)
	}
	u, err := strconv.ParseInt(vals["updated_at"], 10, 64)
	if err != nil {
		return created, updated, fmt.Errorf("tally/store/redis: parse updated_at: %w", err)
	}
	return store.EpochMillis(c), store.EpochMillis(u), nil
}

func seenKey(actorID string) string {
	return "tally:seen:" + actorID
}

func actorKey(actorID string) string {
	return "tally:actor:" + actorID
}

func counterKey(key string) string {
	return "tally:counter:" + key
}
