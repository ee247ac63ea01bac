package cty

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/rogercaminal/hamcontestlog/internal/observability"
)

// CachedResolver wraps a ContinentResolver with a bounded LRU cache. Only
// successful lookups are cached so a resolver backed by a remote service can
// recover from transient failures.
type CachedResolver struct {
	inner   domain.ContinentResolver
	metrics *observability.Metrics

	mu    sync.Mutex
	cap   int
	order *list.List // front is most recently used
	items map[string]*list.Element
}

type cacheItem struct {
	key       string
	continent string
}

// NewCachedResolver creates a cache decorator holding up to maxEntries calls.
// metrics may be nil.
func NewCachedResolver(inner domain.ContinentResolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		metrics: metrics,
		cap:     max(maxEntries, 1),
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Continent implements domain.ContinentResolver. Lookups are keyed by the
// upper-cased, trimmed callsign; errors and empty continents are passed
// through without being cached.
func (c *CachedResolver) Continent(ctx context.Context, callsign string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(callsign))
	if cont, ok := c.get(key); ok {
		c.record("hit")
		return cont, nil
	}
	c.record("miss")

	cont, err := c.inner.Continent(ctx, callsign)
	if err != nil {
		return "", err
	}
	if cont != "" {
		c.put(key, cont)
	}
	return cont, nil
}

// Len reports the number of cached calls.
func (c *CachedResolver) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *CachedResolver) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).continent, true
}

func (c *CachedResolver) put(key, continent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheItem).continent = continent
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&cacheItem{key: key, continent: continent})
	if len(c.items) > c.cap {
		tail := c.order.Back()
		c.order.Remove(tail)
		delete(c.items, tail.Value.(*cacheItem).key)
	}
}

func (c *CachedResolver) record(result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ContinentCache.WithLabelValues(result).Inc()
}
