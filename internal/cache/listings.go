// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cache holds the in-memory cache for cloud model listings. Listings
// come from billable upstream calls, so the catalog keeps them briefly instead
// of hitting the provider on every build.
package cache

import (
	"sync"
	"time"

	"github.com/lifedeck/aigw"
)

// DefaultListingTTL bounds how stale a cloud listing may get before the next
// catalog build refetches it.
const DefaultListingTTL = time.Minute

type listingEntry struct {
	descriptors []aigw.ModelDescriptor
	expiresAt   time.Time
}

// ListingCache caches cloud model listings keyed by owner and provider. A
// credential change must Invalidate the pair so a revoked key stops serving
// cached models.
type ListingCache struct {
	mu      sync.RWMutex
	entries map[string]listingEntry
	ttl     time.Duration
}

// NewListingCache creates a cache with the given TTL; zero or negative falls
// back to [DefaultListingTTL].
func NewListingCache(ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	return &ListingCache{
		entries: make(map[string]listingEntry),
		ttl:     ttl,
	}
}

func listingKey(ownerID, provider string) string {
	return ownerID + "\x00" + provider
}

// Get returns the cached listing for the owner/provider pair, if fresh.
func (c *ListingCache) Get(ownerID, provider string) ([]aigw.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[listingKey(ownerID, provider)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.descriptors, true
}

// Put stores a listing, restarting its TTL.
func (c *ListingCache) Put(ownerID, provider string, descriptors []aigw.ModelDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[listingKey(ownerID, provider)] = listingEntry{
		descriptors: descriptors,
		expiresAt:   time.Now().Add(c.ttl),
	}
}

// Invalidate drops the cached listing for one owner/provider pair.
func (c *ListingCache) Invalidate(ownerID, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, listingKey(ownerID, provider))
}

// Purge removes expired entries. Callers that keep a long-lived cache should
// run this periodically; the catalog does so opportunistically on build.
func (c *ListingCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries, expired ones included.
func (c *ListingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
