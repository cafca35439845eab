package dedup

import (
	"container/list"
	"sync"
)

// DefaultCapacity bounds the processed-event cache when no capacity is configured.
const DefaultCapacity = 1000

// Cache remembers dedup keys of events that were already applied. Implementations
// must be safe for concurrent use.
type Cache interface {
	Contains(key string) bool
	Add(key, fingerprint string)
	Len() int
}

type cacheEntry struct {
	key         string
	fingerprint string
}

// MemoryCache is a bounded in-process Cache that evicts in insertion order.
// Re-adding a present key refreshes its fingerprint but not its position.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

// NewMemoryCache constructs a MemoryCache; non-positive capacities fall back to DefaultCapacity.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Contains reports whether key was recorded and not yet evicted.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Add records key and evicts the oldest entries beyond capacity.
func (c *MemoryCache) Add(key, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[key]; ok {
		element.Value.(*cacheEntry).fingerprint = fingerprint
		return
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, fingerprint: fingerprint})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached keys.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
