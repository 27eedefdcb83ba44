// Package kvstore wraps the external key-value store used for rate-limit
// counters and distributed locks.
package kvstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Store is the key-value contract the gateway needs: counters with a
// window, and a best-effort distributed lock.
type Store interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore implements Store over a Redis connection.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis at the given URL
// (redis://host:port/db).
func NewRedisStore(url string, maxConnections int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	if maxConnections > 0 {
		opts.PoolSize = maxConnections
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client; used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// IncrWindow increments key and stamps the window TTL on first increment.
// Returns the counter value within the current window.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "incr failed")
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, errors.Wrap(err, "expire failed")
		}
	}
	return count, nil
}

// AcquireLock takes the named lock for ttl. Returns false when another
// holder has it.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx failed")
	}
	return ok, nil
}

// ReleaseLock drops the named lock.
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Get returns the value for key, empty string when missing.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "get failed")
	}
	return val, nil
}

// Set stores value under key with a TTL (0 means no expiry).
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Ping checks connectivity; used by readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
