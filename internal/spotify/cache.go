package spotify

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
)

// Clock returns the current time. Injected so expiry is testable.
type Clock func() time.Time

// ResultCache remembers filtered search results per normalized query.
type ResultCache struct {
	ttl        time.Duration
	maxEntries int
	now        Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tracks    []domain.Track
	expiresAt time.Time
}

// NewResultCache creates a cache. A non-positive ttl disables caching.
func NewResultCache(ttl time.Duration, maxEntries int, now Clock) *ResultCache {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &ResultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]cacheEntry),
	}
}

// NormalizeQuery is the cache key for a query.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns a copy of the cached result if present and unexpired.
func (c *ResultCache) Get(query string) ([]domain.Track, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	key := NormalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return slices.Clone(e.tracks), true
}

// Put stores tracks for query.
func (c *ResultCache) Put(query string, tracks []domain.Track) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[NormalizeQuery(query)] = cacheEntry{
		tracks:    slices.Clone(tracks),
		expiresAt: now.Add(c.ttl),
	}
}

// Len returns the number of entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the one closest to expiry if still full.
func (c *ResultCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
