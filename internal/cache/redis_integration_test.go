//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipwatch/pkg/testutil/containers"
)

type backedValue struct {
	Address string `json:"address"`
	Country string `json:"country"`
}

func newBackedCache(t *testing.T, backing Backing) *Cache {
	t.Helper()
	c := New(Config{
		DefaultTTL:      time.Minute,
		ResolutionTTL:   time.Minute,
		StatsTTL:        time.Minute,
		JanitorInterval: time.Hour,
	}, WithBacking(backing))
	t.Cleanup(c.Close)
	return c
}

func TestRedisBackingSharesResolutionsAcrossCaches(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	backing := NewRedisBacking(rc.Client)

	writer := newBackedCache(t, backing)
	reader := newBackedCache(t, backing)

	key := Key(NamespaceResolution, "168.95.1.1")
	writer.Set(key, backedValue{Address: "168.95.1.1", Country: "TW"}, time.Minute)

	// The reader has a cold local cache; the value must come from Redis
	// without invoking the factory.
	factoryCalls := 0
	got, err := GetOrCreate(context.Background(), reader, key, time.Minute,
		func(context.Context) (backedValue, error) {
			factoryCalls++
			return backedValue{}, nil
		})
	require.NoError(t, err)
	assert.Zero(t, factoryCalls)
	assert.Equal(t, "TW", got.Country)
}

func TestRedisBackingSkipsGeneralNamespace(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	backing := NewRedisBacking(rc.Client)

	writer := newBackedCache(t, backing)
	reader := newBackedCache(t, backing)

	key := Key(NamespaceGeneral, "cls:168.95.1.1")
	writer.Set(key, backedValue{Address: "168.95.1.1"}, time.Minute)

	factoryCalls := 0
	_, err := GetOrCreate(context.Background(), reader, key, time.Minute,
		func(context.Context) (backedValue, error) {
			factoryCalls++
			return backedValue{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, factoryCalls)
}

func TestRedisBackingInvalidation(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	backing := NewRedisBacking(rc.Client)

	writer := newBackedCache(t, backing)

	first := Key(NamespaceResolution, "8.8.8.8")
	second := Key(NamespaceResolution, "1.1.1.1")
	writer.Set(first, backedValue{Address: "8.8.8.8"}, time.Minute)
	writer.Set(second, backedValue{Address: "1.1.1.1"}, time.Minute)

	writer.Invalidate(first)

	reader := newBackedCache(t, backing)
	factoryCalls := 0
	_, err := GetOrCreate(context.Background(), reader, first, time.Minute,
		func(context.Context) (backedValue, error) {
			factoryCalls++
			return backedValue{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, factoryCalls, "invalidated key must fall through to the factory")

	// Prefix invalidation clears the remaining backed entry.
	writer.InvalidatePrefix(string(NamespaceResolution) + ":")
	_, err = backing.Get(context.Background(), second)
	assert.ErrorIs(t, err, ErrBackingMiss)
}

func TestRedisBackingTTLExpiry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	backing := NewRedisBacking(rc.Client)

	key := Key(NamespaceResolution, "9.9.9.9")
	require.NoError(t, backing.Set(context.Background(), key, []byte(`{"address":"9.9.9.9"}`), 200*time.Millisecond))

	_, err := backing.Get(context.Background(), key)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	_, err = backing.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrBackingMiss)
}
