// Package cache provides a TTL'd get-or-create cache with per-namespace
// default TTLs, hit/miss accounting, and a live-key registry. Concurrent
// misses for the same key are coalesced into a single factory invocation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Namespace prefixes cache keys so whole categories can be invalidated and
// assigned their own default TTL.
type Namespace string

const (
	// NamespaceGeneral holds miscellaneous entries such as classifications.
	NamespaceGeneral Namespace = "gen"

	// NamespaceResolution holds resolved lookup results.
	NamespaceResolution Namespace = "res"

	// NamespaceStats holds aggregate counters. Entries here carry a much
	// shorter TTL since they must reflect near-real-time writes.
	NamespaceStats Namespace = "stats"
)

// Key builds a namespaced cache key.
func Key(ns Namespace, k string) string {
	return string(ns) + ":" + k
}

// NamespaceOf extracts the namespace prefix from a key, for metric labels.
func NamespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return string(NamespaceGeneral)
}

// Config controls default TTLs and the expiry sweep cadence.
type Config struct {
	DefaultTTL      time.Duration
	ResolutionTTL   time.Duration
	StatsTTL        time.Duration
	JanitorInterval time.Duration
}

// DefaultConfig returns the TTLs used in production.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      10 * time.Minute,
		ResolutionTTL:   time.Hour,
		StatsTTL:        10 * time.Second,
		JanitorInterval: time.Minute,
	}
}

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache accounting.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	LiveKeyCount  int
	OldestLiveKey time.Time
}

// Cache is safe for use by arbitrary concurrent callers. Counter and
// registry updates are atomic or lock-protected; no state is ambient.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	group    singleflight.Group
	registry *keyRegistry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	cfg     Config
	backing Backing
	onEvict func(key string)
	onHit   func(key string)
	onMiss  func(key string)

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures optional cache behavior.
type Option func(*Cache)

// WithEvictionHook registers a callback invoked after any eviction, whether
// by expiry or explicit removal. The internal registry is always pruned
// before the hook runs.
func WithEvictionHook(hook func(key string)) Option {
	return func(c *Cache) { c.onEvict = hook }
}

// WithAccountingHooks registers callbacks invoked on every hit and miss,
// letting callers export the counters to an external metrics system.
func WithAccountingHooks(onHit, onMiss func(key string)) Option {
	return func(c *Cache) {
		c.onHit = onHit
		c.onMiss = onMiss
	}
}

// WithBacking attaches a shared second-level store for resolution entries.
// Backing reads happen inside the single-flight section, so a backing hit
// still costs at most one round trip per key across concurrent callers.
func WithBacking(b Backing) Option {
	return func(c *Cache) { c.backing = b }
}

// New constructs a cache and starts its expiry sweep. Call Close to stop it.
func New(cfg Config, opts ...Option) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.ResolutionTTL <= 0 {
		cfg.ResolutionTTL = DefaultConfig().ResolutionTTL
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = DefaultConfig().StatsTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = DefaultConfig().JanitorInterval
	}

	c := &Cache{
		entries:  make(map[string]entry),
		registry: newKeyRegistry(),
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.janitor()
	return c
}

// Close stops the expiry sweep.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// TTLFor returns the default TTL for a namespace.
func (c *Cache) TTLFor(ns Namespace) time.Duration {
	switch ns {
	case NamespaceResolution:
		return c.cfg.ResolutionTTL
	case NamespaceStats:
		return c.cfg.StatsTTL
	default:
		return c.cfg.DefaultTTL
	}
}

// GetOrCreate returns the cached value for key, invoking factory exactly
// once per miss. Concurrent callers for the same key share a single
// in-flight factory call. A ttl of zero falls back to the general default.
func GetOrCreate[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, factory func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.get(key); ok {
		c.recordHit(key)
		typed, ok := v.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("cache entry %q holds %T", key, v)
		}
		return typed, nil
	}
	c.recordMiss(key)

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the entry while this
		// call waited its turn.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		if c.backed(key) {
			if payload, err := c.backing.Get(ctx, key); err == nil {
				out := new(T)
				if err := json.Unmarshal(payload, out); err == nil {
					c.setLocal(key, *out, ttl)
					return *out, nil
				}
			}
		}
		created, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, created, ttl)
		return created, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %q holds %T", key, v)
	}
	return typed, nil
}

// Get reads a live entry without affecting the single-flight group.
func (c *Cache) Get(key string) (any, bool) {
	if v, ok := c.get(key); ok {
		c.recordHit(key)
		return v, true
	}
	c.recordMiss(key)
	return nil, false
}

func (c *Cache) recordHit(key string) {
	c.hits.Add(1)
	if c.onHit != nil {
		c.onHit(key)
	}
}

func (c *Cache) recordMiss(key string) {
	c.misses.Add(1)
	if c.onMiss != nil {
		c.onMiss(key)
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		c.evict(key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key. A ttl of zero uses the general default.
// Backed entries are written through best-effort; a backing outage never
// fails a local write.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	c.setLocal(key, value, ttl)

	if c.backed(key) {
		if payload, err := json.Marshal(value); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = c.backing.Set(ctx, key, payload, ttl)
			cancel()
		}
	}
}

func (c *Cache) setLocal(key string, value any, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	c.entries[key] = entry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()

	c.registry.add(key, now)
}

// backed reports whether key lives in the backed resolution namespace.
func (c *Cache) backed(key string) bool {
	return c.backing != nil && strings.HasPrefix(key, string(NamespaceResolution)+":")
}

// Invalidate removes a single key. Removal of a present key counts as an
// eviction and prunes the registry.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		c.afterEvict(key)
	}
	if c.backed(key) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = c.backing.Delete(ctx, key)
		cancel()
	}
	return ok
}

// InvalidatePrefix removes every key under a namespace prefix and reports
// how many were evicted.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	var removed []string
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.afterEvict(key)
	}
	resPrefix := string(NamespaceResolution) + ":"
	if c.backing != nil && (strings.HasPrefix(prefix, resPrefix) || strings.HasPrefix(resPrefix, prefix)) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = c.backing.DeletePrefix(ctx, prefix)
		cancel()
	}
	return len(removed)
}

// Compact evicts the oldest fraction of entries under memory pressure.
// fraction is clamped to [0,1]; the count evicted is returned.
func (c *Cache) Compact(fraction float64) int {
	fraction = math.Max(0, math.Min(1, fraction))

	c.mu.Lock()
	total := len(c.entries)
	target := int(math.Ceil(float64(total) * fraction))
	if target == 0 {
		c.mu.Unlock()
		return 0
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, total)
	for key, e := range c.entries {
		all = append(all, aged{key: key, createdAt: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	removed := make([]string, 0, target)
	for _, a := range all[:target] {
		delete(c.entries, a.key)
		removed = append(removed, a.key)
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.afterEvict(key)
	}
	return len(removed)
}

// Stats reports hit/miss totals and live-key bookkeeping.
func (c *Cache) Stats() Stats {
	count, oldest := c.registry.snapshot()
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		LiveKeyCount:  count,
		OldestLiveKey: oldest,
	}
}

func (c *Cache) evict(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(time.Now()) {
		delete(c.entries, key)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		c.afterEvict(key)
	}
}

func (c *Cache) afterEvict(key string) {
	c.registry.remove(key)
	c.evictions.Add(1)
	if c.onEvict != nil {
		c.onEvict(key)
	}
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	var expired []string
	for key, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	for _, key := range expired {
		c.afterEvict(key)
	}
}
