package gateway

import (
	"sync"
	"time"

	"github.com/addnad/perpgate/oracle"
)

// Cache maps asset symbols to their most recent quote. Entries are replaced
// on refresh and never deleted; age, not eviction, decides usability. The
// asset universe is fixed at deploy time, so memory stays bounded.
type Cache struct {
	mu    sync.RWMutex
	items map[string]oracle.Quote
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]oracle.Quote)}
}

// Get returns the stored quote for an asset regardless of its age.
func (c *Cache) Get(asset string) (oracle.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.items[asset]
	return q, ok
}

// Put overwrites the quote for an asset.
func (c *Cache) Put(asset string, q oracle.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[asset] = q
}

// Fresh reports whether the quote is within the TTL window at the given
// instant.
func Fresh(q oracle.Quote, ttl time.Duration, now time.Time) bool {
	return now.Sub(q.FetchedAt) < ttl
}

// Snapshot copies out every entry, for persistence.
func (c *Cache) Snapshot() []oracle.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]oracle.Quote, 0, len(c.items))
	for _, q := range c.items {
		out = append(out, q)
	}
	return out
}

// Restore seeds the cache from a snapshot. Existing entries win over
// restored ones, so a restore after traffic has started cannot roll a
// price backwards.
func (c *Cache) Restore(quotes []oracle.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotes {
		if cur, ok := c.items[q.Asset]; ok && cur.FetchedAt.After(q.FetchedAt) {
			continue
		}
		c.items[q.Asset] = q
	}
}
