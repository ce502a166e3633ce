package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

const (
	// DefaultQueryCacheTTL is how long a cached range query stays valid.
	DefaultQueryCacheTTL = 5 * time.Minute

	anonymousPrincipal = "anonymous"
)

// QueryCacheKey derives the cache key of a range query.
func QueryCacheKey(collection string, rng domain.DateRange, principalID string) string {
	return strings.Join([]string{collection, rng.String(), principalKey(principalID)}, "|")
}

type cacheEntry struct {
	records   []domain.Appointment
	principal string
	createdAt time.Time
	ttl       time.Duration
}

func (e cacheEntry) valid(at time.Time) bool {
	return at.Sub(e.createdAt) < e.ttl
}

// QueryCache is an in-memory TTL cache of ordered query results. Expiry is checked lazily on read.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewQueryCache constructs an empty cache; a non-positive ttl falls back to DefaultQueryCacheTTL.
func NewQueryCache(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &QueryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the cache clock for deterministic tests.
func (c *QueryCache) WithClock(clock func() time.Time) *QueryCache {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Get returns a copy of the entry when it is still valid. Expired entries are dropped.
func (c *QueryCache) Get(key string) ([]domain.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.valid(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return domain.CloneAppointments(entry.records), true
}

// Put stores records under key, replacing any previous entry.
func (c *QueryCache) Put(key, principalID string, records []domain.Appointment) {
	if records == nil {
		records = []domain.Appointment{}
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		records:   domain.CloneAppointments(records),
		principal: principalKey(principalID),
		createdAt: c.now(),
		ttl:       c.ttl,
	}
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// DropPrincipal removes all entries cached on behalf of the principal and returns how many were dropped.
func (c *QueryCache) DropPrincipal(principalID string) int {
	owner := principalKey(principalID)

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.entries {
		if entry.principal == owner {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of stored entries, including ones that expired but were not read yet.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func principalKey(principalID string) string {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return anonymousPrincipal
	}
	return principalID
}
