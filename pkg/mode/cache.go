package mode

import (
	"context"
	"sync"
	"time"
)

// Probe answers whether the direct copy tool is usable right now.
type Probe func(ctx context.Context) bool

// availabilityCache memoizes the probe result for a TTL window. Refreshes are
// lazy and single-flight: while one caller refreshes, concurrent callers read
// the previous value instead of blocking, so the probe runs at most once per
// window no matter how many requesters arrive.
type availabilityCache struct {
	mu         sync.Mutex
	probe      Probe
	ttl        time.Duration
	value      bool
	checkedAt  time.Time
	refreshing bool
}

func newAvailabilityCache(probe Probe, ttl time.Duration) *availabilityCache {
	return &availabilityCache{probe: probe, ttl: ttl}
}

// Get returns the cached availability, refreshing when the window expired.
// Only the very first call ever blocks on the probe.
func (c *availabilityCache) Get(ctx context.Context) bool {
	c.mu.Lock()

	fresh := !c.checkedAt.IsZero() && time.Since(c.checkedAt) < c.ttl
	if fresh || c.refreshing {
		v := c.value
		c.mu.Unlock()
		return v
	}

	first := c.checkedAt.IsZero()
	c.refreshing = true
	stale := c.value
	c.mu.Unlock()

	if first {
		v := c.probe(ctx)
		c.store(v)
		return v
	}

	// Refresh in the background; this caller gets the stale value.
	go func() {
		c.store(c.probe(context.Background()))
	}()
	return stale
}

func (c *availabilityCache) store(v bool) {
	c.mu.Lock()
	c.value = v
	c.checkedAt = time.Now()
	c.refreshing = false
	c.mu.Unlock()
}

// Invalidate forces the next Get to re-probe.
func (c *availabilityCache) Invalidate() {
	c.mu.Lock()
	c.checkedAt = time.Time{}
	c.mu.Unlock()
}
