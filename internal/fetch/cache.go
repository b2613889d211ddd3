package fetch

import (
	"container/list"
	"sync"
	"time"

	"bibleclock/internal/bible"
	"bibleclock/internal/model"
)

// Cache defaults. One hour covers the longest span between scheduled full
// refreshes; 500 entries is far more than a day of distinct references.
const (
	DefaultCacheTTL     = time.Hour
	DefaultCacheEntries = 500
)

type cacheKey struct {
	ref         bible.Reference
	translation model.Translation
}

type cacheEntry struct {
	key       cacheKey
	text      string
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL cache with LRU eviction, keyed by
// (reference, translation). It is shared between the scheduler cycle and web
// handlers; contention is negligible at appliance request rates.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int

	ll    *list.List // front = most recently used
	items map[cacheKey]*list.Element

	hits   uint64
	misses uint64

	now func() time.Time
}

// NewCache builds a cache; non-positive arguments fall back to the defaults.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[cacheKey]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached text for (ref, translation) when present and fresh.
func (c *Cache) Get(ref bible.Reference, tr model.Translation) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[cacheKey{ref: ref, translation: tr}]
	if !ok {
		c.misses++
		return "", false
	}
	ent := el.Value.(*cacheEntry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return "", false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return ent.text, true
}

// Put stores text for (ref, translation), evicting the least recently used
// entry when the cache is full.
func (c *Cache) Put(ref bible.Reference, tr model.Translation, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{ref: ref, translation: tr}
	expires := c.now().Add(c.ttl)

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.text = text
		ent.expiresAt = expires
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, text: text, expiresAt: expires})
	c.items[key] = el

	for c.ll.Len() > c.maxEntries {
		c.removeLocked(c.ll.Back())
	}
}

// Delete drops a single entry, so a forced refresh reaches the sources again.
func (c *Cache) Delete(ref bible.Reference, tr model.Translation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[cacheKey{ref: ref, translation: tr}]; ok {
		c.removeLocked(el)
	}
}

// PurgeExpired drops all stale entries and reports how many were removed.
// The daily maintenance job calls this.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns hit/miss counters and the current size.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.ll.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*cacheEntry)
	delete(c.items, ent.key)
	c.ll.Remove(el)
}
