package gfw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maritimeviz/maritimeviz/internal/observability"
)

// CachedClient wraps an API with an in-memory LRU cache whose entries expire
// after a TTL.
type CachedClient struct {
	inner   API
	cache   *lruCache
	metrics *observability.Metrics
}

var _ API = (*CachedClient)(nil)

// NewCachedClient creates a cache decorator around an API. A nil clock uses
// the real clock.
func NewCachedClient(inner API, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedClient {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &CachedClient{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedClient) SearchVessel(ctx context.Context, identifier string) ([]Entry, error) {
	key := "vessels:" + identifier
	if v, ok := c.lookup(key, "vessels"); ok {
		return v.([]Entry), nil
	}
	result, err := c.inner.SearchVessel(ctx, identifier)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so "not found" can be retried.
	if len(result) > 0 {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedClient) FishingEvents(ctx context.Context, vesselID, startDate, endDate string, limit, offset int) ([]Entry, error) {
	key := fmt.Sprintf("events:%s|%s|%s|%d|%d", vesselID, startDate, endDate, limit, offset)
	if v, ok := c.lookup(key, "events"); ok {
		return v.([]Entry), nil
	}
	result, err := c.inner.FishingEvents(ctx, vesselID, startDate, endDate, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedClient) FishingStats(ctx context.Context, startDate, endDate string) (Stats, error) {
	key := "stats:" + startDate + "|" + endDate
	if v, ok := c.lookup(key, "stats"); ok {
		return v.(Stats), nil
	}
	result, err := c.inner.FishingStats(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedClient) lookup(key, endpoint string) (any, bool) {
	v, ok := c.cache.get(key)
	if c.metrics != nil {
		result := "miss"
		if ok {
			result = "hit"
		}
		c.metrics.GFWCache.WithLabelValues(endpoint, result).Inc()
	}
	return v, ok
}

// lruCache is a thread-safe LRU cache with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration // 0 disables expiry
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   any
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
