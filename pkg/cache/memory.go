package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache in-memory кэш с LRU вытеснением и ленивым истечением TTL
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = самый свежий
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	hits   int64
	misses int64
	closed bool
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryCache создаёт новый in-memory кэш
func NewMemoryCache(opts *Options) *MemoryCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultOptions().MaxEntries
	}
	return &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		defaultTTL: opts.DefaultTTL,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// lookup возвращает живую запись; просроченная удаляется. Вызывать под mu.
func (c *MemoryCache) lookup(key string) (*memoryEntry, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if entry.expired(c.now()) {
		c.removeElement(el)
		return nil, false
	}
	return entry, true
}

func (c *MemoryCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*memoryEntry).key)
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	entry, ok := c.lookup(key)
	if !ok {
		c.misses++
		return nil, ErrKeyNotFound
	}
	c.hits++
	c.order.MoveToFront(c.items[key])

	return append([]byte(nil), entry.value...), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := &memoryEntry{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return nil
	}
	for c.order.Len() >= c.maxEntries {
		c.removeElement(c.order.Back())
	}
	c.items[key] = c.order.PushFront(entry)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrCacheClosed
	}
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrCacheClosed
	}
	var n int64
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) Stats(_ context.Context) (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	stats := &Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Backend: BackendMemory,
	}
	now := c.now()
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*memoryEntry)
		if entry.expired(now) {
			continue
		}
		stats.TotalKeys++
		stats.MemoryBytes += int64(len(entry.key) + len(entry.value))
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.items = nil
	c.order.Init()
	return nil
}
