package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
)

const (
	quoteCacheTTL     = 5 * time.Second
	quoteCacheMaxSize = 200
)

type cacheEntry struct {
	quote    *arb.Quote
	storedAt time.Time
}

// quoteCache is a TTL cache keyed by (input, output, amount). Slippage
// and routing flags are not part of the key: within a 5 s window the
// same size always yields the same route.
type quoteCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
}

func newQuoteCache() *quoteCache {
	return &quoteCache{
		entries: make(map[string]cacheEntry),
		ttl:     quoteCacheTTL,
		maxSize: quoteCacheMaxSize,
	}
}

func cacheKey(input, output solana.PublicKey, amount uint64) string {
	return fmt.Sprintf("%s:%s:%d", input.String(), output.String(), amount)
}

func (c *quoteCache) get(input, output solana.PublicKey, amount uint64) (*arb.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(input, output, amount)]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.quote, true
}

func (c *quoteCache) put(input, output solana.PublicKey, amount uint64, quote *arb.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[cacheKey(input, output, amount)] = cacheEntry{quote: quote, storedAt: time.Now()}
}

// evictLocked drops expired entries first, then the oldest until under cap.
func (c *quoteCache) evictLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.storedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *quoteCache) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *quoteCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
