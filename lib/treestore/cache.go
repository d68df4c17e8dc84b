// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

// CacheStats reports node cache activity since the store was opened.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (stats CacheStats) HitRatio() float64 {
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total)
}

// nodeCache holds decoded nodes. Lookups take the read lock; inserts
// and eviction take the write lock. Eviction is separate from insert so
// a batch can insert many nodes and evict once.
type nodeCache struct {
	capacity int

	mutex   sync.RWMutex
	entries map[digest.Digest]*tree.Node

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func newNodeCache(capacity int) *nodeCache {
	return &nodeCache{
		capacity: capacity,
		entries:  make(map[digest.Digest]*tree.Node),
	}
}

func (c *nodeCache) get(hash digest.Digest) (*tree.Node, bool) {
	c.mutex.RLock()
	node, found := c.entries[hash]
	c.mutex.RUnlock()

	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return node, found
}

// contains checks membership without touching the counters.
func (c *nodeCache) contains(hash digest.Digest) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, found := c.entries[hash]
	return found
}

func (c *nodeCache) put(node *tree.Node) {
	c.mutex.Lock()
	c.entries[node.Hash()] = node
	c.mutex.Unlock()
}

// evict shrinks the cache to half its capacity once it holds more
// than its capacity. Which entries go is unspecified.
func (c *nodeCache) evict() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.entries) <= c.capacity {
		return
	}
	target := c.capacity / 2
	for hash := range c.entries {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, hash)
		c.evictions.Add(1)
	}
}

func (c *nodeCache) stats() CacheStats {
	c.mutex.RLock()
	size := len(c.entries)
	c.mutex.RUnlock()

	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
		Capacity:  c.capacity,
	}
}

// CacheStats returns the node cache counters.
func (s *Store) CacheStats() CacheStats {
	return s.cache.stats()
}
