package permission

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newCache(time.Minute, clock.Now)
	defer c.Stop()

	key := CacheKey{Department: "IT", Role: "USER", Module: ModuleAssets}
	c.Set(key, FullAccess)
	if d, ok := c.Get(key); !ok || d != FullAccess {
		t.Fatalf("expected hit, got %+v %v", d, ok)
	}
	clock.Advance(time.Minute)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected entry to expire at ttl")
	}
	c.evictExpired()
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(0)
	defer c.Stop()
	if c.TTL() != DefaultCacheTTL {
		t.Fatalf("expected default ttl, got %v", c.TTL())
	}

	a := CacheKey{Department: "IT", Role: "USER", Module: ModuleAssets}
	b := CacheKey{Department: "IT", Role: "MANAGER", Module: ModuleReports}
	other := CacheKey{Department: "HR", Role: "USER", Module: ModuleAssets}
	for _, k := range []CacheKey{a, b, other} {
		c.Set(k, ReadOnly)
	}

	c.Clear(a)
	if _, ok := c.Get(a); ok || c.Len() != 2 {
		t.Fatalf("Clear(key) did not remove exactly one entry")
	}
	c.ClearDepartment("IT")
	if _, ok := c.Get(b); ok {
		t.Fatalf("ClearDepartment left an IT entry")
	}
	if _, ok := c.Get(other); !ok {
		t.Fatalf("ClearDepartment removed another department")
	}
	c.ClearAll()
	if c.Len() != 0 {
		t.Fatalf("ClearAll left %d entries", c.Len())
	}
	c.Stop()
	c.Stop()
}

func TestParseModuleAndAction(t *testing.T) {
	if m, err := ParseModule(" digital_assets "); err != nil || m != ModuleDigitalAssets {
		t.Fatalf("ParseModule: %v %v", m, err)
	}
	if _, err := ParseModule("BILLING"); err == nil {
		t.Fatalf("expected unknown module error")
	}
	if a, err := ParseAction("WRITE"); err != nil || a != ActionWrite {
		t.Fatalf("ParseAction: %v %v", a, err)
	}
	if FullAccess.Allows("approve") || !ReadOnly.Allows(ActionRead) || ReadOnly.Allows(ActionDelete) {
		t.Fatalf("Allows mismatch")
	}
}

func TestSetIfGenerationSkipsInvalidatedDepartment(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()
	key := CacheKey{Department: "IT", Role: "USER", Module: ModuleAssets}

	gen := c.Generation("IT")
	c.ClearDepartment("HR")
	if !c.SetIfGeneration(key, gen, ReadOnly) {
		t.Fatalf("another department's invalidation must not block the write")
	}

	gen = c.Generation("IT")
	c.ClearDepartment("IT")
	if c.SetIfGeneration(key, gen, ReadOnly) {
		t.Fatalf("write after ClearDepartment should be skipped")
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("stale entry stored")
	}

	gen = c.Generation("IT")
	c.ClearAll()
	if c.SetIfGeneration(key, gen, ReadOnly) {
		t.Fatalf("write after ClearAll should be skipped")
	}
}
