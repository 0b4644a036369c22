package cache

import (
	"fmt"
	"sync"
	"time"

	"example.com/booking/internal/domain"
)

type entry struct {
	view     domain.WeekView
	cachedAt time.Time
}

// ScheduleCache is an in-process week view cache keyed by facility and week
// start. Entries expire after a TTL and are dropped eagerly on every
// enrollment mutation touching the week.
type ScheduleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewScheduleCache constructs a cache. A non-positive ttl disables expiry.
func NewScheduleCache(ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the cached view when present and fresh.
func (c *ScheduleCache) Get(facilityID int64, weekStart time.Time) (*domain.WeekView, bool) {
	c.mu.RLock()
	e, ok := c.entries[cacheKey(facilityID, weekStart)]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.cachedAt) > c.ttl {
		c.Drop(facilityID, weekStart)
		return nil, false
	}
	view := e.view
	return &view, true
}

// Put stores the view.
func (c *ScheduleCache) Put(view domain.WeekView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(view.FacilityID, view.WeekStart)] = entry{view: view, cachedAt: c.now()}
}

// Drop removes the cached week, forcing recomputation on the next read.
func (c *ScheduleCache) Drop(facilityID int64, weekStart time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(facilityID, weekStart))
}

func cacheKey(facilityID int64, weekStart time.Time) string {
	return fmt.Sprintf("%d|%s", facilityID, weekStart.UTC().Format("2006-01-02"))
}
