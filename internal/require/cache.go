package require

import "sync"

type cacheKey struct{ host, tool string }

// Cache remembers tool checks for the life of a process, keyed by
// connection, so doctor and repeated launches probe each host once.
type Cache struct {
	mu sync.Mutex
	m  map[cacheKey]CheckResult
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{m: make(map[cacheKey]CheckResult)}
}

// Get returns the cached result of tool on host.
func (c *Cache) Get(host, tool string) (CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[cacheKey{host, tool}]
	return r, ok
}

// Set records the result of tool on host.
func (c *Cache) Set(host, tool string, r CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey{host, tool}] = r
}

// Clear forgets everything about host, e.g. after it was reconfigured.
func (c *Cache) Clear(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if k.host == host {
			delete(c.m, k)
		}
	}
}
