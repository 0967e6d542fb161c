package auth

import (
	"container/list"
	"sync"
	"time"
)

// KeyCache maps a presented key to its verified agent id for a fixed TTL.
// When full, the oldest inserted entry is evicted; reads do not reorder.
type KeyCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key       string
	agentID   string
	expiresAt time.Time
}

type CacheOption func(*KeyCache)

func WithClock(now func() time.Time) CacheOption {
	return func(c *KeyCache) { c.now = now }
}

func NewKeyCache(capacity int, ttl time.Duration, opts ...CacheOption) *KeyCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &KeyCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *KeyCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		return "", false
	}
	return e.agentID, true
}

func (c *KeyCache) Put(key, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	for c.order.Len() >= c.capacity {
		c.remove(c.order.Front())
	}
	e := &cacheEntry{key: key, agentID: agentID, expiresAt: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushBack(e)
}

func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *KeyCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
