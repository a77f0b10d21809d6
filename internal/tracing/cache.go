package tracing

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/0xPexy/aletta-backend/internal/metrics"
)

// lruCache is a bounded cache that reports hits and misses under name.
type lruCache[K comparable, V any] struct {
	name    string
	entries *lru.Cache[K, V]
	metrics *metrics.TraceMetrics
}

func newLRUCache[K comparable, V any](name string, size int, m *metrics.TraceMetrics) *lruCache[K, V] {
	if size <= 0 {
		size = 1
	}
	entries, err := lru.New[K, V](size)
	if err != nil {
		panic(err)
	}
	return &lruCache[K, V]{name: name, entries: entries, metrics: m}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		}
	}
	return v, ok
}

func (c *lruCache[K, V]) Set(key K, value V) {
	c.entries.Add(key, value)
}
