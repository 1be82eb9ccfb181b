package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultScoreCacheSize is the default number of pair scores to cache.
// Re-ranking the same candidate pool against a repeated query skips the
// inference round-trip entirely.
const DefaultScoreCacheSize = 4096

// CachedHandle wraps a Handle with LRU caching keyed by (model, query, text).
type CachedHandle struct {
	inner Handle
	cache *lru.Cache[string, float64]
}

// NewCachedHandle creates a cached handle wrapping the given handle.
// Cache size determines the number of unique pair scores kept in memory.
func NewCachedHandle(inner Handle, cacheSize int) *CachedHandle {
	if cacheSize <= 0 {
		cacheSize = DefaultScoreCacheSize
	}
	cache, _ := lru.New[string, float64](cacheSize)
	return &CachedHandle{
		inner: inner,
		cache: cache,
	}
}

// cacheKey generates a unique key for the pair.
// SHA-256 keeps key length fixed and handles arbitrary text.
func (c *CachedHandle) cacheKey(query, text string) string {
	combined := c.inner.ModelName() + "\x00" + query + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Score returns the cached score if available, otherwise computes and caches.
// Errors are never cached; a failed pair is retried on the next call.
func (c *CachedHandle) Score(ctx context.Context, query, text string) (float64, error) {
	key := c.cacheKey(query, text)

	if score, ok := c.cache.Get(key); ok {
		return score, nil
	}

	score, err := c.inner.Score(ctx, query, text)
	if err != nil {
		return 0, err
	}

	c.cache.Add(key, score)
	return score, nil
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedHandle) ModelName() string {
	return c.inner.ModelName()
}

// Close releases resources and closes the inner handle.
func (c *CachedHandle) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying handle.
func (c *CachedHandle) Inner() Handle {
	return c.inner
}

// Verify interface implementation at compile time
var _ Handle = (*CachedHandle)(nil)
