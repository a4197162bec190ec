package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each collection document as one redis string.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. Keys are stored as prefix+name.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr string, db int, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewRedisBackend(client, prefix), nil
}

// Read implements Backend.
func (r *RedisBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Write implements Backend. Documents are applied in one MULTI/EXEC block.
func (r *RedisBackend) Write(ctx context.Context, docs map[string][]byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, data := range docs {
			if data == nil {
				pipe.Del(ctx, r.prefix+key)
				continue
			}
			pipe.Set(ctx, r.prefix+key, data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write collections: %w", err)
	}
	return nil
}

// Keys implements Backend.
func (r *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
