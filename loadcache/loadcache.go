// Package loadcache provides a bounded, expire-after-write, load-on-miss
// cache keyed by fully qualified name. One instance backs each entity kind
// in the label cache.
package loadcache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/catalogd/catalog-cache/telemetry"
)

// LoaderFunc loads the value for a key from the backing store on a cache
// miss. Errors are never cached; the next Get for the key retries the load.
type LoaderFunc[V any] func(ctx context.Context, key string) (V, error)

// Config holds cache configuration.
type Config struct {
	// Name identifies this cache in logs and metrics.
	Name string

	// MaxEntries bounds the number of resident entries. When exceeded, the
	// least recently used entry is evicted. Zero means unbounded.
	MaxEntries int

	// TTL is the time-to-live since an entry was written. Entries older
	// than this are reloaded on the next access, never served stale.
	// Zero means entries never expire.
	TTL time.Duration

	// Logger for load and eviction events.
	Logger *slog.Logger
}

// Cache is a size-bounded, time-expiring, load-on-miss cache.
//
// Concurrent misses for the same key are coalesced into a single loader
// call via singleflight; concurrent lookups for different keys proceed
// independently.
type Cache[V any] struct {
	loader LoaderFunc[V]
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
	order   *list.List // front = most recently used, values are keys

	sf singleflight.Group
}

type entry[V any] struct {
	value     V
	writtenAt time.Time
	elem      *list.Element
}

// New creates a cache that fills misses using loader.
func New[V any](loader LoaderFunc[V], cfg Config) *Cache[V] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache[V]{
		loader:  loader,
		config:  cfg,
		logger:  cfg.Logger,
		now:     time.Now,
		entries: make(map[string]*entry[V]),
		order:   list.New(),
	}
}

// Get returns the cached value for key, loading it from the backing store
// if it is absent or its TTL has elapsed.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if !c.expired(e) {
			c.order.MoveToFront(e.elem)
			c.mu.Unlock()
			telemetry.RecordCacheLookup(ctx, c.config.Name, telemetry.LookupHit)
			return e.value, nil
		}
		// Expired entries are dropped here so the singleflight load below
		// observes a clean miss.
		c.removeLocked(key, e)
	}
	c.mu.Unlock()

	telemetry.RecordCacheLookup(ctx, c.config.Name, telemetry.LookupMiss)

	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.load(ctx, key)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// load invokes the loader and stores the result. Runs at most once per key
// across concurrent callers.
func (c *Cache[V]) load(ctx context.Context, key string) (V, error) {
	start := c.now()
	value, err := c.loader(ctx, key)
	telemetry.RecordCacheLoad(ctx, c.config.Name, c.now().Sub(start), err)
	if err != nil {
		var zero V
		c.logger.Debug("load failed", "cache", c.config.Name, "key", key, "error", err)
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		// A racing load already stored the key; refresh it in place.
		e.value = value
		e.writtenAt = c.now()
		c.order.MoveToFront(e.elem)
		return value, nil
	}

	e := &entry[V]{value: value, writtenAt: c.now()}
	e.elem = c.order.PushFront(key)
	c.entries[key] = e

	c.evictLocked(ctx)
	telemetry.UpdateCacheEntries(ctx, c.config.Name, int64(len(c.entries)))

	return value, nil
}

// evictLocked removes least recently used entries until the cache is within
// its configured bound. Caller must hold c.mu.
func (c *Cache[V]) evictLocked(ctx context.Context) {
	if c.config.MaxEntries <= 0 {
		return
	}
	for len(c.entries) > c.config.MaxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		key := oldest.Value.(string)
		c.removeLocked(key, c.entries[key])
		telemetry.RecordCacheEviction(ctx, c.config.Name)
		c.logger.Debug("evicted entry", "cache", c.config.Name, "key", key)
	}
}

func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.entries, key)
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.config.TTL > 0 && c.now().Sub(e.writtenAt) >= c.config.TTL
}

// Len returns the number of resident entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InvalidateAll evicts every entry. Subsequent gets reload from the
// backing store.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.order.Init()
}
