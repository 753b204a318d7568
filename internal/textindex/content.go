package textindex

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/hybridsearch/internal/telemetry"
)

// DefaultContentCacheSize bounds the content cache entry count.
const DefaultContentCacheSize = 512

// DefaultContentTTL is how long cached content stays fresh.
const DefaultContentTTL = 5 * time.Minute

// DefaultSnippetWidth is the number of characters around the first
// matched term included in a snippet.
const DefaultSnippetWidth = 160

// Loader fetches document content for a file id on cache miss.
type Loader func(ctx context.Context, fileID string) (string, error)

type contentEntry struct {
	content  string
	cachedAt time.Time
	ttl      time.Duration
}

func (e *contentEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.cachedAt) > e.ttl
}

// ContentCacheStats is a point-in-time snapshot of cache counters.
type ContentCacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// ContentCache is a bounded LRU with per-entry TTL serving document
// content for snippet extraction. Keys are normalized paths so the
// same file reached through different spellings shares one entry.
type ContentCache struct {
	lru     *lru.Cache[string, *contentEntry]
	loader  Loader
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  *slog.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// ContentCacheOption configures a ContentCache.
type ContentCacheOption func(*ContentCache)

// WithContentTTL overrides the default entry TTL. Zero disables expiry.
func WithContentTTL(ttl time.Duration) ContentCacheOption {
	return func(c *ContentCache) { c.ttl = ttl }
}

// WithContentMetrics attaches a telemetry sink.
func WithContentMetrics(m *telemetry.Metrics) ContentCacheOption {
	return func(c *ContentCache) { c.metrics = m }
}

// WithContentLogger overrides the default logger.
func WithContentLogger(logger *slog.Logger) ContentCacheOption {
	return func(c *ContentCache) { c.logger = logger }
}

// NewContentCache creates a content cache of at most maxLen entries
// backed by loader.
func NewContentCache(maxLen int, loader Loader, opts ...ContentCacheOption) (*ContentCache, error) {
	if maxLen <= 0 {
		maxLen = DefaultContentCacheSize
	}
	if loader == nil {
		return nil, fmt.Errorf("content cache: loader is required")
	}

	inner, err := lru.New[string, *contentEntry](maxLen)
	if err != nil {
		return nil, fmt.Errorf("content cache: %w", err)
	}

	c := &ContentCache{
		lru:    inner,
		loader: loader,
		ttl:    DefaultContentTTL,
		logger: slog.Default().With("component", "content_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the content for fileID, loading it on miss or expiry.
func (c *ContentCache) Get(ctx context.Context, fileID string) (string, error) {
	key := NormalizePath(fileID)
	now := time.Now()

	if entry, ok := c.lru.Get(key); ok {
		if !entry.expired(now) {
			c.hits.Add(1)
			c.metrics.CacheHit("content")
			return entry.content, nil
		}
		c.lru.Remove(key)
	}

	c.misses.Add(1)
	c.metrics.CacheMiss("content")

	content, err := c.loader(ctx, fileID)
	if err != nil {
		c.logger.Debug("content load failed", "file_id", fileID, "error", err)
		return "", fmt.Errorf("load content for %s: %w", fileID, err)
	}

	if evicted := c.lru.Add(key, &contentEntry{content: content, cachedAt: now, ttl: c.ttl}); evicted {
		c.evictions.Add(1)
		c.metrics.CacheEviction("content")
	}
	return content, nil
}

// Invalidate drops the cached content for fileID, if present.
func (c *ContentCache) Invalidate(fileID string) {
	c.lru.Remove(NormalizePath(fileID))
}

// Clear drops all cached content.
func (c *ContentCache) Clear() {
	c.lru.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *ContentCache) Stats() ContentCacheStats {
	return ContentCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}

// Snippet extracts a window of content around the first query term
// occurrence. It falls back to the leading width characters when no
// term matches and returns "" for empty content.
func (c *ContentCache) Snippet(ctx context.Context, fileID, query string, width int) (string, error) {
	content, err := c.Get(ctx, fileID)
	if err != nil {
		return "", err
	}
	return ExtractSnippet(content, query, width), nil
}

// NormalizePath canonicalizes a file id for use as a cache key:
// backslashes become slashes, redundant segments collapse, and leading
// "./" is dropped.
func NormalizePath(fileID string) string {
	p := strings.ReplaceAll(fileID, "\\", "/")
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// ExtractSnippet returns a window of roughly width characters centered
// on the first occurrence of any query term, with word-boundary trim.
func ExtractSnippet(content, query string, width int) string {
	if content == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultSnippetWidth
	}

	lower := strings.ToLower(content)
	pos := -1
	for _, term := range uniqueTerms(Tokenize(query)) {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(content) {
		end = len(content)
		if start = end - width; start < 0 {
			start = 0
		}
	}

	snippet := content[start:end]

	// Trim partial words at the cut points.
	if start > 0 {
		if i := strings.IndexAny(snippet, " \t\n"); i >= 0 && i < len(snippet)-1 {
			snippet = snippet[i+1:]
		}
	}
	if end < len(content) {
		if i := strings.LastIndexAny(snippet, " \t\n"); i > 0 {
			snippet = snippet[:i]
		}
	}
	return strings.TrimSpace(snippet)
}
