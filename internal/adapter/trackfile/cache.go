package trackfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
)

// CachedLoader wraps a Loader with an in-memory LRU cache keyed by file
// identity, so batch runs over many masks parse a shared track file once.
// Tables returned from the cache are shared and must not be modified.
type CachedLoader struct {
	inner   Loader
	cache   *lruCache[domain.TrackTable]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedLoader creates a cache decorator around a loader. metrics may be nil.
func NewCachedLoader(inner Loader, maxEntries int, metrics *observability.Metrics) *CachedLoader {
	return &CachedLoader{
		inner:   inner,
		cache:   newLRUCache[domain.TrackTable](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedLoader) Load(ctx context.Context, path string, mode domain.MeshMode) (domain.TrackTable, error) {
	key, err := cacheKey(path, mode)
	if err != nil {
		return domain.TrackTable{}, err
	}
	if table, ok := c.cache.get(key); ok {
		c.record("hit")
		return table, nil
	}
	c.record("miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		table, err := c.inner.Load(ctx, path, mode)
		if err != nil {
			return domain.TrackTable{}, err
		}
		c.cache.put(key, table)
		return table, nil
	})
	if err != nil {
		return domain.TrackTable{}, err
	}
	return v.(domain.TrackTable), nil
}

func (c *CachedLoader) record(result string) {
	if c.metrics != nil {
		c.metrics.TrackCache.WithLabelValues(result).Inc()
	}
}

// cacheKey changes whenever the file is rewritten in place.
func cacheKey(path string, mode domain.MeshMode) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve track file: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat track file: %w", err)
	}
	return fmt.Sprintf("%s|%d|%d|%s", abs, info.Size(), info.ModTime().UnixNano(), mode), nil
}

// lruCache is a thread-safe least-recently-used map.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
