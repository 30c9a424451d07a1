package cache

import (
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCapacity bounds how many distinct hosts' robots.txt results are
// held in memory at once; long, many-host crawls evict rather than grow
// without bound.
const DefaultCapacity = 10_000

// LRUCache adapts hashicorp/golang-lru's expirable LRU to the Cache port.
// Entries never expire on their own (ttl 0); eviction is purely
// capacity-driven, since a robots.txt ruling is valid for the life of the
// crawl run.
type LRUCache struct {
	inner *lru.LRU[string, string]
}

// NewLRUCache returns an LRUCache bounded to capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{inner: lru.NewLRU[string, string](capacity, nil, 0)}
}

func (c *LRUCache) Get(key string) (string, bool) {
	return c.inner.Get(key)
}

func (c *LRUCache) Put(key string, value string) {
	c.inner.Add(key, value)
}
