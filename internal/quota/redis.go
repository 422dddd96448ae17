package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisNamespace isolates counter keys from other uses of the same Redis
// instance.
const redisNamespace = "gateway:quota"

// slidingWindowScript performs the prune/sum/conditional-append sequence
// as a single atomic Redis operation using a sorted set keyed by entry
// timestamp, scored by timestamp, with weight stored alongside the member
// to support non-1 weights for aggregate counters.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_ms = tonumber(ARGV[1])
local now_ms = tonumber(ARGV[2])
local weight = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])
local member = ARGV[5]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)

local entries = redis.call("ZRANGE", key, 0, -1, "WITHSCORES")
local current = 0
for i = 1, #entries, 2 do
    local w = tonumber(string.match(entries[i], "^[^:]+:(.+)$"))
    if w then
        current = current + w
    end
end

if current + weight > limit then
    return {0, current}
end

redis.call("ZADD", key, now_ms, member)
redis.call("PEXPIRE", key, window_ms)
return {1, current + weight}
`)

// RedisStore is a CounterStore backed by a Redis sorted set per key,
// suitable for sharing quota state across multiple gateway instances.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) run(ctx context.Context, key string, weight, limit float64, window time.Duration, now time.Time) (bool, float64, error) {
	fullKey := fmt.Sprintf("%s:%s", redisNamespace, key)
	member := fmt.Sprintf("%d:%g", now.UnixNano(), weight)

	res, err := slidingWindowScript.Run(ctx, s.client, []string{fullKey},
		window.Milliseconds(), now.UnixMilli(), weight, limit, member).Result()
	if err != nil {
		return false, 0, fmt.Errorf("quota redis store: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("quota redis store: unexpected script result")
	}
	admitted, _ := results[0].(int64)
	current, _ := results[1].(int64)
	return admitted == 1, float64(current), nil
}

// TryConsume implements CounterStore.
func (s *RedisStore) TryConsume(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, float64, error) {
	return s.run(ctx, key, 1, float64(limit), window, now)
}

// TryAdd implements CounterStore.
func (s *RedisStore) TryAdd(ctx context.Context, key string, weight float64, max float64, window time.Duration, now time.Time) (bool, float64, error) {
	return s.run(ctx, key, weight, max, window, now)
}

// Rollback removes the most recently added member for key. Redis sorted
// sets retain insertion score ordering, so the max-score member is the
// most recent.
func (s *RedisStore) Rollback(ctx context.Context, key string, now time.Time) error {
	fullKey := fmt.Sprintf("%s:%s", redisNamespace, key)
	members, err := s.client.ZRevRangeByScore(ctx, fullKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()), Count: 1,
	}).Result()
	if err != nil {
		return fmt.Errorf("quota redis store rollback: %w", err)
	}
	if len(members) == 0 {
		return nil
	}
	return s.client.ZRem(ctx, fullKey, members[0]).Err()
}
