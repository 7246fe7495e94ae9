package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBacking implements Backing on a shared Redis instance so multiple
// service replicas can reuse each other's resolutions.
type RedisBacking struct {
	client *redis.Client
	prefix string
}

// NewRedisBacking wraps an existing client. The client lifecycle is managed
// externally.
func NewRedisBacking(client *redis.Client) *RedisBacking {
	return &RedisBacking{client: client, prefix: "ipwatch:cache:"}
}

func (b *RedisBacking) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBackingMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return payload, nil
}

func (b *RedisBacking) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBacking) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = b.prefix + key
	}
	if err := b.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeletePrefix scans for matching keys and removes them in one DEL. SCAN
// keeps the operation incremental on large keyspaces.
func (b *RedisBacking) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return len(keys), nil
}
