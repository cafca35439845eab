package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_EvictsInInsertionOrder(t *testing.T) {
	cache := NewMemoryCache(3)
	cache.Add("a", "1")
	cache.Add("b", "2")
	cache.Add("c", "3")

	// Touching "a" must not refresh its position.
	assert.True(t, cache.Contains("a"))
	cache.Add("a", "1b")
	cache.Add("d", "4")

	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Contains("a"))
	assert.True(t, cache.Contains("b"))
	assert.True(t, cache.Contains("c"))
	assert.True(t, cache.Contains("d"))
}

func storedFingerprint(cache *MemoryCache, key string) (string, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	element, ok := cache.entries[key]
	if !ok {
		return "", false
	}
	return element.Value.(*cacheEntry).fingerprint, true
}

func TestMemoryCache_RefreshesFingerprint(t *testing.T) {
	cache := NewMemoryCache(2)
	cache.Add("a", "1")
	cache.Add("a", "2")

	fingerprint, ok := storedFingerprint(cache, "a")
	require.True(t, ok)
	assert.Equal(t, "2", fingerprint)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCache_DefaultCapacity(t *testing.T) {
	cache := NewMemoryCache(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		cache.Add(fmt.Sprintf("key-%d", i), "etag")
	}
	assert.Equal(t, DefaultCapacity, cache.Len())
	assert.False(t, cache.Contains("key-0"))
	assert.True(t, cache.Contains(fmt.Sprintf("key-%d", DefaultCapacity+4)))
}

func TestMemoryCache_ConcurrentUse(t *testing.T) {
	cache := NewMemoryCache(50)
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", worker, i)
				cache.Add(key, "etag")
				cache.Contains(key)
				cache.Len()
			}
		}(worker)
	}
	wg.Wait()
	assert.Equal(t, 50, cache.Len())
}
