package payload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of the go-redis client the store uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps base64 payloads in Redis under prefix+key.
type RedisStore struct {
	kv     KV
	prefix string
}

// NewRedisClient builds a go-redis client for addr and db.
func NewRedisClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

// NewRedisStore wraps kv. prefix is prepended to every key.
func NewRedisStore(kv KV, prefix string) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix}
}

// Save stores data under key. ttl 0 keeps it forever.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.kv.Set(ctx, s.prefix+key, Encode(data), ttl).Err(); err != nil {
		return fmt.Errorf("failed to save payload %s: %w", key, err)
	}
	return nil
}

// Fetch implements Source.
func (s *RedisStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	val, err := s.kv.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payload %s: %w", key, err)
	}
	return Decode(val)
}

// Delete removes the payload stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete payload %s: %w", key, err)
	}
	return nil
}
