package venues

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteCache manages cached pair rates to avoid duplicate rate lookups
type QuoteCache struct {
	mu       sync.RWMutex
	cache    map[string]*cachedQuote
	cacheTTL time.Duration
}

// cachedQuote represents a cached pair rate with timestamp
type cachedQuote struct {
	rate      float64
	timestamp time.Time
}

// NewQuoteCache creates a new quote cache
func NewQuoteCache(cacheTTL time.Duration) *QuoteCache {
	return &QuoteCache{
		cache:    make(map[string]*cachedQuote),
		cacheTTL: cacheTTL,
	}
}

// PairKey builds the cache key for an input/output asset pair
func PairKey(inputAsset, outputAsset common.Address) string {
	return inputAsset.Hex() + "/" + outputAsset.Hex()
}

// Get retrieves a cached rate if it's still valid
func (c *QuoteCache) Get(pair string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[pair]
	if !exists {
		return 0, false
	}

	// Check if cache is still valid
	if time.Since(cached.timestamp) > c.cacheTTL {
		return 0, false
	}

	return cached.rate, true
}

// Set stores a rate in the cache with current timestamp
func (c *QuoteCache) Set(pair string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[pair] = &cachedQuote{
		rate:      rate,
		timestamp: time.Now(),
	}
}

// Clear removes all cached entries
func (c *QuoteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cachedQuote)
}

// globalQuoteCache is a shared cache instance
var globalQuoteCache = NewQuoteCache(5 * time.Minute)
var globalCacheMu sync.Mutex

// getOrCreateCache returns the global cache instance
func getOrCreateCache() *QuoteCache {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	if globalQuoteCache == nil {
		globalQuoteCache = NewQuoteCache(30 * time.Minute)
	}

	return globalQuoteCache
}

// SetGlobalQuoteTTL allows changing the cache TTL for the global cache
func SetGlobalQuoteTTL(ttl time.Duration) {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	globalQuoteCache = NewQuoteCache(ttl)
}

// ClearGlobalQuoteCache clears all cached pair rates
func ClearGlobalQuoteCache() {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	if globalQuoteCache != nil {
		globalQuoteCache.Clear()
	}
}

// GetGlobalQuoteCacheStats returns basic statistics about the cache
func GetGlobalQuoteCacheStats() (int, time.Duration) {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	if globalQuoteCache == nil {
		return 0, 0
	}

	globalQuoteCache.mu.RLock()
	defer globalQuoteCache.mu.RUnlock()

	return len(globalQuoteCache.cache), globalQuoteCache.cacheTTL
}
