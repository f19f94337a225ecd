package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
	at  time.Time
}

// TTLCache is an in-process cache. When full, the oldest entry is evicted.
type TTLCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	max int
	now func() time.Time
}

// NewTTLCache creates a cache holding at most max entries; 0 means no limit.
func NewTTLCache(max int) *TTLCache {
	return &TTLCache{m: make(map[string]entry), max: max, now: time.Now}
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && c.max > 0 && len(c.m) >= c.max {
		c.evictLocked(now)
	}
	c.m[key] = entry{v: value, exp: exp, at: now}
	return nil
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *TTLCache) evictLocked(now time.Time) {
	var oldest string
	var oldestAt time.Time
	expired := false
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			expired = true
			continue
		}
		if oldest == "" || e.at.Before(oldestAt) {
			oldest, oldestAt = k, e.at
		}
	}
	if !expired && oldest != "" {
		delete(c.m, oldest)
	}
}
