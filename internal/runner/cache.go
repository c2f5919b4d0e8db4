package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/anivertis/market-pipeline/internal/model"
)

// DefaultCacheTTL keeps a source's output for a day: re-running the batch
// within the same day should not re-scrape sources that already produced.
const DefaultCacheTTL = 24 * time.Hour

type cacheEntry struct {
	articles  []model.Article
	expiresAt time.Time
}

// Cache is a TTL cache of per-source results, keyed by source and calendar
// day. Safe for concurrent use by the orchestrator's workers.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// CacheKey builds the lookup key for a source on a given day.
func CacheKey(sourceID string, day time.Time) string {
	return fmt.Sprintf("source:%s:%s", sourceID, day.UTC().Format("2006-01-02"))
}

func (c *Cache) Get(key string) ([]model.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.articles, true
}

func (c *Cache) Set(key string, articles []model.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{articles: articles, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
