package cache

import (
	"sync"
	"time"
)

// keyRegistry tracks live keys and their creation times. The underlying
// entry map is private to the cache, so maintenance operations and stats
// reporting read from this registry instead; every eviction path prunes it.
type keyRegistry struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{keys: make(map[string]time.Time)}
}

func (r *keyRegistry) add(key string, createdAt time.Time) {
	r.mu.Lock()
	r.keys[key] = createdAt
	r.mu.Unlock()
}

func (r *keyRegistry) remove(key string) {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
}

func (r *keyRegistry) snapshot() (count int, oldest time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count = len(r.keys)
	for _, createdAt := range r.keys {
		if oldest.IsZero() || createdAt.Before(oldest) {
			oldest = createdAt
		}
	}
	return count, oldest
}
