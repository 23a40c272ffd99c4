package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV on Redis for deployments where the SDK runs in a
// server-side wallet agent rather than a browser-adjacent process.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV creates a Redis-backed KV. An empty prefix defaults to
// "walletkit:".
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "walletkit:"
	}
	return &RedisKV{client: client, prefix: prefix}
}

func (s *RedisKV) key(k string) string { return s.prefix + k }

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis store: get failed: %w", err)
	}
	return v, nil
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set failed: %w", err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis store: delete failed: %w", err)
	}
	return nil
}
