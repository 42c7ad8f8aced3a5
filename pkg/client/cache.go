package client

import "sync"

// Cache is the client-side view store the optimistic coordinator works
// against. Values are replaced whole, never mutated in place, so the value
// read before a speculative apply is the exact rollback snapshot.
type Cache struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewCache() *Cache {
	return &Cache{data: make(map[string]any)}
}

// Get returns the value cached under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key]
	return v, ok
}

// Set replaces the value cached under key.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}
