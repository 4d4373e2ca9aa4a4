package prompt

import (
	"strings"
	"sync"

	"ghostprompt/internal/diff"
)

const maxCachedSuffixes = 64

// SuffixCache remembers the last suffix sent for each document so that small
// edits below the cursor do not change the prompt.
type SuffixCache struct {
	mu    sync.Mutex
	byURI map[string]string
	order []string // least recently stored first
}

// NewSuffixCache creates an empty cache.
func NewSuffixCache() *SuffixCache {
	return &SuffixCache{byURI: make(map[string]string)}
}

// Resolve returns the cached suffix for uri when it is within threshold
// percent (character edit distance over the length of suffix) of suffix,
// and suffix otherwise. The returned value becomes the cached suffix.
func (c *SuffixCache) Resolve(uri, suffix string, threshold int, fits func(string) bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.byURI[uri]; ok && cached != suffix && fits(cached) {
		dist := diff.Levenshtein(cached, suffix)
		if dist*100 <= threshold*max(len([]rune(suffix)), 1) {
			c.touch(uri)
			return cached
		}
	}
	if _, ok := c.byURI[uri]; !ok && len(c.order) >= maxCachedSuffixes {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byURI, oldest)
	}
	c.byURI[uri] = suffix
	c.touch(uri)
	return suffix
}

func (c *SuffixCache) touch(uri string) {
	for i, u := range c.order {
		if u == uri {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, uri)
}

// suffixText returns the text after the cursor starting at the next line.
func suffixText(after string) string {
	i := strings.IndexByte(after, '\n')
	if i < 0 {
		return ""
	}
	return after[i+1:]
}
