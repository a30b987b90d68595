package dr

import (
	"sync"
	"time"
)

// cacheEntry represents a cached DR value with expiration
type cacheEntry struct {
	value      string
	expiration time.Time
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// Cache memoizes resolved DR values keyed by album directory so repeated
// resolutions within the TTL skip re-reading sidecar files.
type Cache struct {
	items map[string]*cacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewCache creates a new DR value cache
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]*cacheEntry),
		ttl:   ttl,
	}
}

// Set stores a DR value for an album directory. Expired entries are pruned
// opportunistically on write instead of by a background sweeper.
func (c *Cache) Set(albumDir, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, entry := range c.items {
		if entry.isExpired() {
			delete(c.items, key)
		}
	}

	c.items[albumDir] = &cacheEntry{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a cached DR value for an album directory
func (c *Cache) Get(albumDir string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[albumDir]
	if !exists || entry.isExpired() {
		return "", false
	}

	return entry.value, true
}

// Delete removes a cached DR value
func (c *Cache) Delete(albumDir string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, albumDir)
}

// Clear removes all cached DR values
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*cacheEntry)
}

// Size returns the number of cached entries
func (c *Cache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}
