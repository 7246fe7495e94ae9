package cache

import (
	"context"
	"errors"
	"time"
)

// ErrBackingMiss reports that a backing store holds no entry for a key.
var ErrBackingMiss = errors.New("cache backing: key not found")

// Backing is an optional second-level store behind the in-memory cache.
// Entries are stored as JSON payloads. Only resolution entries are backed;
// single-flight coalescing stays process-local in front of it.
type Backing interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
