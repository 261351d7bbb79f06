package cache

import (
	"sync"

	"redcube/internal/workflow"
)

// MemoryCache is a process-local cache used in tests and dry runs.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]workflow.StageOutput
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]workflow.StageOutput)}
}

func (c *MemoryCache) Get(stage, key string) (workflow.StageOutput, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[stage+"/"+key]
	return out, ok, nil
}

func (c *MemoryCache) Put(stage, key string, out workflow.StageOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[stage+"/"+key] = out
	return nil
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
