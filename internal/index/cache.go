package index

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/claim-evaluator/internal/domain"
)

const (
	defaultCacheTTL          = 10 * time.Minute
	defaultCacheBuildTimeout = 5 * time.Minute
)

// BuildFunc loads and indexes the document behind a cache key.
type BuildFunc func(ctx context.Context) (domain.Searcher, error)

type cacheEntry struct {
	searcher domain.Searcher
	expires  time.Time
}

// Cache shares built indexes between requests for the same document.
// Concurrent misses for one key run a single build. Failed builds are not cached.
type Cache struct {
	ttl          time.Duration
	buildTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache creates a Cache keeping entries for ttl. Each shared build is
// bounded by buildTimeout instead of the deadline of the caller that started it.
func NewCache(ttl, buildTimeout time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if buildTimeout <= 0 {
		buildTimeout = defaultCacheBuildTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		ttl:          ttl,
		buildTimeout: buildTimeout,
		now:          time.Now,
		logger:       logger,
		entries:      make(map[string]cacheEntry),
	}
}

// Get returns the cached index for key or builds it. Waiting callers give up
// when their own context is done. The build keeps the values of the caller that
// started it but not its cancellation, so other callers still get the result.
func (c *Cache) Get(ctx context.Context, key string, build BuildFunc) (domain.Searcher, error) {
	if searcher, ok := c.lookup(key); ok {
		c.logger.Debug("index cache hit", zap.String("key", key))
		return searcher, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if searcher, ok := c.lookup(key); ok {
			return searcher, nil
		}

		c.logger.Debug("index cache miss", zap.String("key", key))

		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
		defer cancel()

		searcher, err := build(buildCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{searcher: searcher, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()

		return searcher, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.Searcher), nil
	}
}

// Len reports the number of live entries after evicting expired ones.
func (c *Cache) Len() int {
	c.evict()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (domain.Searcher, bool) {
	c.evict()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.searcher, true
}

func (c *Cache) evict() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
		}
	}
}
