package fetcher

import "sync"

// Cache is a concurrency-safe memo of completed fetches, scoped by its owner.
type Cache[V any] struct {
	data sync.Map
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}
	return v.(V), true
}

func (c *Cache[V]) Set(key string, value V) {
	c.data.Store(key, value)
}
