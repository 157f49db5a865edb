package favicon

import (
	"image"
	"sync"
)

// iconCache holds decoded icons keyed by favicon URL. It is safe for
// concurrent use; concurrent population of the same key is last writer
// wins, which is harmless because values are idempotent for a given URL.
type iconCache struct {
	mu      sync.Mutex
	max     int
	seq     int64
	entries map[string]iconEntry
}

type iconEntry struct {
	img image.Image
	seq int64
}

// newIconCache creates an iconCache holding at most max entries; max <= 0
// means no bound.
func newIconCache(max int) *iconCache {
	return &iconCache{
		max:     max,
		entries: make(map[string]iconEntry),
	}
}

func (c *iconCache) get(url string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	return e.img, true
}

func (c *iconCache) set(url string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[url]; !ok && c.max > 0 && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.seq++
	c.entries[url] = iconEntry{img: img, seq: c.seq}
}

// evictOldest drops the earliest-inserted entry. Caller holds mu.
func (c *iconCache) evictOldest() {
	var oldestURL string
	oldestSeq := int64(-1)
	for url, e := range c.entries {
		if oldestSeq < 0 || e.seq < oldestSeq {
			oldestURL, oldestSeq = url, e.seq
		}
	}
	if oldestSeq >= 0 {
		delete(c.entries, oldestURL)
	}
}

func (c *iconCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]iconEntry)
}

func (c *iconCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
