package tokenize

import (
	"hash/fnv"
	"sync"
)

// Cached memoizes TokenLength of an underlying tokenizer. Entries are keyed by
// an FNV hash plus the string length; the oldest entry is evicted at capacity.
type Cached struct {
	Tokenizer

	mu      sync.Mutex
	entries map[cacheKey]*lengthEntry
	maxSize int
	clock   uint64
	hits    uint64
	misses  uint64
}

type cacheKey struct {
	hash uint64
	size int
}

type lengthEntry struct {
	tokens int
	used   uint64
}

// NewCached wraps t with a length cache of at most maxSize entries.
func NewCached(t Tokenizer, maxSize int) *Cached {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cached{
		Tokenizer: t,
		entries:   make(map[cacheKey]*lengthEntry),
		maxSize:   maxSize,
	}
}

func (c *Cached) TokenLength(s string) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	key := cacheKey{hash: h.Sum64(), size: len(s)}

	c.mu.Lock()
	c.clock++
	if e, ok := c.entries[key]; ok {
		e.used = c.clock
		c.hits++
		c.mu.Unlock()
		return e.tokens
	}
	c.misses++
	c.mu.Unlock()

	n := c.Tokenizer.TokenLength(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &lengthEntry{tokens: n, used: c.clock}
	return n
}

// Stats returns cache hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// evictOldest removes the least recently used entry. Caller holds c.mu.
func (c *Cached) evictOldest() {
	var (
		oldestKey cacheKey
		oldest    uint64
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.used < oldest {
			oldestKey, oldest, found = k, e.used, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
