package predictor

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ArtifactCache keeps loaded artifacts keyed by (kind, model) until they are
// invalidated. Concurrent loads of the same key share one store read.
type ArtifactCache struct {
	loader *Loader
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

// cacheEntry reference-counts an artifact so eviction never closes it under
// an in-flight request.
type cacheEntry struct {
	art     ModelArtifact
	refs    int
	evicted bool
}

// NewArtifactCache wraps loader with an in-memory cache.
func NewArtifactCache(loader *Loader, logger *zap.Logger) *ArtifactCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactCache{
		loader:  loader,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
	}
}

// Acquire implements ArtifactSource.
func (c *ArtifactCache) Acquire(ctx context.Context, kind FingerprintKind, model string) (ModelArtifact, func(), error) {
	key := ArtifactKey(kind, model)
	if e := c.retain(key); e != nil {
		return e.art, c.releaser(e), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if e := c.peek(key); e != nil {
			return e, nil
		}
		art, err := c.loader.Load(ctx, kind, model)
		if err != nil {
			return nil, err
		}
		e := &cacheEntry{art: art}
		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, nil, err
	}
	e := v.(*cacheEntry)
	c.mu.Lock()
	if e.evicted {
		c.mu.Unlock()
		// evicted between load and retain; load again
		return c.Acquire(ctx, kind, model)
	}
	e.refs++
	c.mu.Unlock()
	return e.art, c.releaser(e), nil
}

// Invalidate drops the cached artifact for (kind, model). The next Acquire
// reloads it.
func (c *ArtifactCache) Invalidate(kind FingerprintKind, model string) bool {
	key := ArtifactKey(kind, model)
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.evictLocked(e)
	}
	c.mu.Unlock()
	if ok {
		c.logger.Info("model artifact invalidated", zap.String("key", key))
	}
	return ok
}

// Reload replaces the cached artifact for (kind, model) with a fresh load.
func (c *ArtifactCache) Reload(ctx context.Context, kind FingerprintKind, model string) error {
	c.Invalidate(kind, model)
	_, release, err := c.Acquire(ctx, kind, model)
	if err != nil {
		return err
	}
	release()
	return nil
}

// Purge drops every cached artifact and returns how many were dropped.
func (c *ArtifactCache) Purge() int {
	c.mu.Lock()
	n := len(c.entries)
	for key, e := range c.entries {
		delete(c.entries, key)
		c.evictLocked(e)
	}
	c.mu.Unlock()
	if n > 0 {
		c.logger.Info("model artifact cache purged", zap.Int("entries", n))
	}
	return n
}

// Keys lists the storage keys currently cached.
func (c *ArtifactCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for key := range c.entries {
		out = append(out, key)
	}
	return out
}

func (c *ArtifactCache) retain(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.refs++
	return e
}

func (c *ArtifactCache) peek(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

func (c *ArtifactCache) releaser(e *cacheEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			closeNow := e.evicted && e.refs == 0
			c.mu.Unlock()
			if closeNow {
				_ = e.art.Close()
			}
		})
	}
}

func (c *ArtifactCache) evictLocked(e *cacheEntry) {
	e.evicted = true
	if e.refs == 0 {
		_ = e.art.Close()
	}
}
