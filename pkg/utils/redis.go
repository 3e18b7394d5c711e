package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig bounds the go-redis client. Zero values take defaults sized
// for the concurrency-cap workload, which is many tiny script calls.
type RedisConfig struct {
	Addr string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c *RedisConfig) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = 4 * time.Second
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
}

// OpenRedis builds a client and verifies connectivity with one PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg.applyDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Acquire increments the counter and rolls back when past the limit, all in
// one script so two racing callers cannot both slip under the cap. The TTL
// is re-armed on every acquire: a crashed process leaks its slot for at most
// one TTL.
var concurrencyAcquireScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
elseif redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end

if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var concurrencyReleaseScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// AcquireConcurrencyCap takes one slot under key, or reports the cap is
// full. It backs the per-company decision-engine limit: one tenant's burst
// of messages must not monopolize the shared model quota.
func AcquireConcurrencyCap(ctx context.Context, rdb *redis.Client, key string, limit int, ttl time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return false, fmt.Errorf("key is required")
	}
	if limit <= 0 {
		return false, fmt.Errorf("limit must be > 0")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be > 0")
	}

	res, err := concurrencyAcquireScript.Run(ctx, rdb, []string{key}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ReleaseConcurrencyCap returns a slot taken by AcquireConcurrencyCap.
func ReleaseConcurrencyCap(ctx context.Context, rdb *redis.Client, key string) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	_, err := concurrencyReleaseScript.Run(ctx, rdb, []string{key}).Result()
	return err
}
