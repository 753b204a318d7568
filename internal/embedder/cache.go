package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/hybridsearch/internal/telemetry"
)

// DefaultCacheSize bounds the embedding cache when the caller does not
// choose a capacity.
const DefaultCacheSize = 10000

// cacheEntry pairs a vector with its creation time and lifetime.
type cacheEntry struct {
	vector    []float32
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Cache is the bounded, TTL-aware embedding cache shared across
// queries. Entries are evicted least-recently-used on overflow and
// treated as misses once their backend-specific TTL has passed;
// expired entries are purged lazily on access.
type Cache struct {
	lru     *lru.Cache[string, *cacheEntry]
	name    string
	metrics *telemetry.Metrics
	logger  *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// NewCache creates an embedding cache bounded to maxLen entries.
func NewCache(maxLen int, opts ...CacheOption) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	inner, err := lru.New[string, *cacheEntry](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, already guarded.
		inner, _ = lru.New[string, *cacheEntry](DefaultCacheSize)
	}

	c := &Cache{
		lru:    inner,
		name:   "embedding",
		logger: slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheMetrics attaches telemetry counters.
func WithCacheMetrics(m *telemetry.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// WithCacheName sets the label used for telemetry.
func WithCacheName(name string) CacheOption {
	return func(c *Cache) { c.name = name }
}

// Get returns a copy of the cached vector for key. Expired entries are
// removed and reported as misses. A non-zero expectDim guards against
// corrupted entries: a cached vector of the wrong dimension is dropped
// and treated as a miss rather than surfaced to the caller.
func (c *Cache) Get(key string, expectDim int) ([]float32, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		c.miss()
		return nil, false
	}

	if entry.expired(time.Now()) {
		c.lru.Remove(key)
		c.miss()
		return nil, false
	}

	if len(entry.vector) == 0 || (expectDim > 0 && len(entry.vector) != expectDim) {
		c.logger.Warn("dropping corrupted cache entry",
			"key", key, "len", len(entry.vector), "want", expectDim)
		c.lru.Remove(key)
		c.miss()
		return nil, false
	}

	c.hits.Add(1)
	c.metrics.CacheHit(c.name)

	// Copy so caller mutations cannot pollute the cache.
	vector := make([]float32, len(entry.vector))
	copy(vector, entry.vector)
	return vector, true
}

// Put inserts or overwrites a vector with the given lifetime. At
// capacity, exactly one least-recently-used entry is evicted.
func (c *Cache) Put(key string, vector []float32, ttl time.Duration) {
	stored := make([]float32, len(vector))
	copy(stored, vector)

	evicted := c.lru.Add(key, &cacheEntry{
		vector:    stored,
		createdAt: time.Now(),
		ttl:       ttl,
	})
	if evicted {
		c.evictions.Add(1)
		c.metrics.CacheEviction(c.name)
	}
}

// Clear empties the cache. Counters are preserved.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of hit, miss, and eviction counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss(c.name)
}

// normalize collapses whitespace so formatting differences do not
// fragment the cache.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// cacheKey derives the cache key from normalized text and model id.
func cacheKey(normalized, model string) string {
	h := sha256.Sum256([]byte(normalized + "\x00" + model))
	return hex.EncodeToString(h[:])
}
