package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis stores keys in a Redis database, namespaced by prefix. Useful when a
// kiosk device shares a local Redis with other capture tools.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to url and verifies the connection with PING.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("kv: redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFromClient(client, prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "hstats"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
