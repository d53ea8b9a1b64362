// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package cache provides the in-process location cache used by the
// heartbeat path. A client's location is resolved at most once per
// identity per TTL window; repeat heartbeats reuse the cached value
// instead of hitting the external providers.
package cache

import (
	"sync"
	"time"

	"github.com/plenavideo/vigia/internal/models"
)

type lruEntry struct {
	key       string
	value     models.LocationInfo
	prev      *lruEntry
	next      *lruEntry
	expiresAt time.Time
}

// LocationCache is a thread-safe LRU cache of resolved locations keyed
// by identity, with lazy TTL expiration. Get, Add, and eviction are all
// O(1): a doubly-linked list keeps recency order and a map gives direct
// lookup.
type LocationCache struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	items map[string]*lruEntry

	// head.next is most recently used, tail.prev least recently used.
	head *lruEntry
	tail *lruEntry

	hits   int64
	misses int64
}

// NewLocationCache creates a cache holding up to capacity identities,
// each entry valid for ttl.
func NewLocationCache(capacity int, ttl time.Duration) *LocationCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	c := &LocationCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get returns the cached location for the identity when present and not
// expired. Found entries move to the front of the recency order.
func (c *LocationCache) Get(identity string) (models.LocationInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[identity]
	if !exists {
		c.misses++
		return models.LocationInfo{}, false
	}

	if time.Now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.misses++
		return models.LocationInfo{}, false
	}

	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// Add stores or refreshes the location for the identity, evicting the
// least recently used entry when at capacity.
func (c *LocationCache) Add(identity string, loc models.LocationInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if entry, exists := c.items[identity]; exists {
		entry.value = loc
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{
		key:       identity,
		value:     loc,
		expiresAt: expiresAt,
	}
	c.addToFront(entry)
	c.items[identity] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove drops the identity from the cache. Returns true when an entry
// was present.
func (c *LocationCache) Remove(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[identity]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// Len returns the current number of cached identities.
func (c *LocationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns hit/miss counters and the current size.
func (c *LocationCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// list manipulation, lock must be held

func (c *LocationCache) addToFront(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LocationCache) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *LocationCache) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *LocationCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
