/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package schema

import (
	"encoding/json"
	"sync"
	"time"
)

// CacheEntry represents a resolved schema held by the resolver
type CacheEntry struct {
	Key         SchemaKey
	Schema      json.RawMessage
	ResolvedAt  time.Time
	AccessCount int64
}

// isExpired checks the entry against ttl at now
func (ce *CacheEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return !now.Before(ce.ResolvedAt.Add(ttl))
}

// CacheStats represents cache statistics
type CacheStats struct {
	Enabled     bool          `json:"enabled"`
	TTL         time.Duration `json:"ttl"`
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	TotalAccess int64         `json:"total_access"`
	Expired     int           `json:"expired"`
}

// schemaCache holds resolved schemas. Expiry is checked lazily on read; a
// zero ttl disables caching and a zero maxSize leaves the cache unbounded.
type schemaCache struct {
	mu      sync.Mutex
	entries map[SchemaKey]*CacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newSchemaCache(ttl time.Duration, maxSize int, now func() time.Time) *schemaCache {
	return &schemaCache{
		entries: make(map[SchemaKey]*CacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

func (c *schemaCache) enabled() bool {
	return c.ttl > 0
}

// get returns a live entry for key
func (c *schemaCache) get(key SchemaKey) (json.RawMessage, bool) {
	if !c.enabled() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if entry.isExpired(c.now(), c.ttl) {
		delete(c.entries, key)
		return nil, false
	}

	entry.AccessCount++
	return entry.Schema, true
}

// put stores schema for key, replacing any existing entry
func (c *schemaCache) put(key SchemaKey, schema json.RawMessage) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = &CacheEntry{
		Key:        key,
		Schema:     schema,
		ResolvedAt: c.now(),
	}
}

// invalidate drops key from the cache
func (c *schemaCache) invalidate(key SchemaKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// evictLocked drops expired entries, or the least used oldest entry when none
// have expired.
func (c *schemaCache) evictLocked() {
	now := c.now()
	evicted := false
	for key, entry := range c.entries {
		if entry.isExpired(now, c.ttl) {
			delete(c.entries, key)
			evicted = true
		}
	}
	if evicted {
		return
	}

	var victim *CacheEntry
	for _, entry := range c.entries {
		if victim == nil || entry.AccessCount < victim.AccessCount ||
			(entry.AccessCount == victim.AccessCount && entry.ResolvedAt.Before(victim.ResolvedAt)) {
			victim = entry
		}
	}
	if victim != nil {
		delete(c.entries, victim.Key)
	}
}

func (c *schemaCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Enabled: c.enabled(),
		TTL:     c.ttl,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
	}
	now := c.now()
	for _, entry := range c.entries {
		stats.TotalAccess += entry.AccessCount
		if entry.isExpired(now, c.ttl) {
			stats.Expired++
		}
	}
	return stats
}
