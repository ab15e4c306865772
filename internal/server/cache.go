// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jeranaias/agrichat/internal/suggest"
)

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// queryCache holds recent suggestion results keyed by conversation
// fingerprint, so identical trailing context within the TTL is answered
// without regenerating.
type queryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time // stubbed in tests
}

type cacheEntry struct {
	queries   []string
	expiresAt time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	c := &queryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go c.cleanup()
	return c
}

// close stops the cleanup goroutine. Safe to call more than once.
func (c *queryCache) close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *queryCache) get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.queries, true
}

func (c *queryCache) put(key string, queries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{queries: queries, expiresAt: c.now().Add(c.ttl)}
}

func (c *queryCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// cacheKeyWindowSize is how many trailing messages identify a conversation
// for caching.
const cacheKeyWindowSize = 4

// cacheKey fingerprints the last 4 messages as "role:content" lines.
func cacheKey(messages []suggest.WireMessage) string {
	start := 0
	if len(messages) > cacheKeyWindowSize {
		start = len(messages) - cacheKeyWindowSize
	}

	h := sha256.New()
	for i, msg := range messages[start:] {
		if i > 0 {
			h.Write([]byte("\n"))
		}
		h.Write([]byte(msg.Role + ":" + msg.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
