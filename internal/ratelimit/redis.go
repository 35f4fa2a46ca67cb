package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript mirrors tokenBucket.take so every instance sharing the Redis
// server sees the same buckets.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local cooldown = tonumber(ARGV[4])
local now = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local data = redis.call('HMGET', key, 'tokens', 'last', 'cool')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
local cool = tonumber(data[3]) or 0

if tokens == nil then
  tokens = capacity
  last = now
end

if cool > 0 then
  if now < cool then
    return 0
  end
  tokens = capacity
  last = now
  cool = 0
end

local periods = math.floor((now - last) / period)
if periods > 0 then
  tokens = math.min(capacity, tokens + periods * refill)
  last = last + periods * period
end

local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
elseif cooldown > 0 then
  cool = now + cooldown
end

redis.call('HSET', key, 'tokens', tokens, 'last', last, 'cool', cool)
redis.call('PEXPIRE', key, ttl)
return allowed
`)

// RedisBackend keeps buckets in Redis hashes.
type RedisBackend struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisBackend creates a Redis-backed bucket store.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, now: time.Now}
}

// Take implements Backend.
func (r *RedisBackend) Take(ctx context.Context, key string, cfg Config) (bool, error) {
	// Keep idle buckets around long enough to refill completely.
	ttl := cfg.Period*time.Duration(cfg.Capacity) + cfg.Cooldown + time.Minute

	res, err := takeScript.Run(ctx, r.client, []string{r.prefix + "ratelimit:" + key},
		cfg.Capacity,
		cfg.Refill,
		cfg.Period.Milliseconds(),
		cfg.Cooldown.Milliseconds(),
		r.now().UnixMilli(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return res == 1, nil
}
