package permission

import (
	"sync"
	"time"
)

const DefaultCacheTTL = 5 * time.Minute

// CacheKey identifies one cached decision.
type CacheKey struct {
	Department string
	Role       string
	Module     Module
}

type cacheItem struct {
	decision  Decision
	expiresAt time.Time
}

// Cache holds resolved decisions for a fixed TTL. Entries are replaced
// whole, never mutated. A janitor goroutine evicts expired entries until
// Stop is called.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[CacheKey]cacheItem
	// gens counts invalidations per department; ClearAll bumps epoch.
	gens  map[string]uint64
	epoch uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCache starts a cache with the given TTL; ttl <= 0 selects DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	return newCache(ttl, time.Now)
}

func newCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		ttl:    ttl,
		now:    now,
		items:  make(map[CacheKey]cacheItem),
		gens:   make(map[string]uint64),
		stopCh: make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *Cache) Get(key CacheKey) (Decision, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(item.expiresAt) {
		return Decision{}, false
	}
	return item.decision, true
}

func (c *Cache) Set(key CacheKey, d Decision) {
	c.mu.Lock()
	c.items[key] = cacheItem{decision: d, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Generation identifies the invalidation state of department. Read it
// before loading a decision and pass it to SetIfGeneration.
func (c *Cache) Generation(department string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.gens[department]
}

// SetIfGeneration stores d only if department was not invalidated since
// gen was read. It reports whether the entry was stored.
func (c *Cache) SetIfGeneration(key CacheKey, gen uint64, d Decision) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.gens[key.Department] != gen {
		return false
	}
	c.items[key] = cacheItem{decision: d, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Clear drops a single entry.
func (c *Cache) Clear(key CacheKey) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// ClearDepartment drops every entry for department, across roles and modules.
func (c *Cache) ClearDepartment(department string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[department]++
	for k := range c.items {
		if k.Department == department {
			delete(c.items, k)
		}
	}
}

func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.items = make(map[CacheKey]cacheItem)
	c.epoch++
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Stop ends the janitor. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, k)
		}
	}
}
