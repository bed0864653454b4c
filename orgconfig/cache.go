// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orgconfig

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached org config stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// cacheEntry holds one cached config together with the source that
// populated it and its expiry.
type cacheEntry struct {
	Value      *OrgConfig
	Origin     Source
	ExpiresAt  time.Time
	LastUpdate time.Time
}

// IsExpired checks if the cache entry has expired.
func (e *cacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache is a thread-safe TTL cache for resolved org configs, keyed by org.
// Writes replace whole entries so a concurrent reader can never observe a
// partially-updated config.
type Cache struct {
	entries map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex

	stats CacheStats
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// NewCache creates a cache with the given TTL. Non-positive TTLs fall back
// to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns a fresh cached config for the org, or ok=false on miss or
// expiry.
func (c *Cache) Get(orgID string) (*OrgConfig, Source, bool) {
	c.mu.RLock()
	entry, exists := c.entries[orgID]
	c.mu.RUnlock()

	if !exists || entry.IsExpired() {
		c.recordMiss()
		return nil, "", false
	}

	c.recordHit()
	return entry.Value, entry.Origin, true
}

// GetStale returns a cached config even if it has expired. Used when the
// remote authority is unreachable and a stale answer beats no answer.
func (c *Cache) GetStale(orgID string) (*OrgConfig, Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[orgID]
	if !exists {
		return nil, "", false
	}
	return entry.Value, entry.Origin, true
}

// Set stores a config for the org, recording which source produced it.
func (c *Cache) Set(orgID string, cfg *OrgConfig, origin Source) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[orgID] = &cacheEntry{
		Value:      cfg,
		Origin:     origin,
		ExpiresAt:  now.Add(c.ttl),
		LastUpdate: now,
	}
}

// Invalidate removes the entry for one org.
func (c *Cache) Invalidate(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orgID)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
