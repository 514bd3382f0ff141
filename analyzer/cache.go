package analyzer

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry is the value stored per key, alongside its expiry time for
// TTL eviction.
type cacheEntry struct {
	key       string
	result    Result
	expiresAt time.Time
}

// lruCache is a fixed-capacity, TTL-bounded LRU: a doubly-linked list for
// recency order plus a map for O(1) lookup. Put evicts the tail once the
// entry count exceeds capacity; an expired entry is dropped when Get finds
// it.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	index    map[string]*list.Element
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached result for key, or ok=false if absent or expired.
// A hit moves the entry to the front (most recently used).
func (c *lruCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.index[key]
	if !found {
		return Result{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.index, key)
		return Result{}, false
	}
	c.ll.MoveToFront(el)
	return entry.result, true
}

// Put inserts or refreshes key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *lruCache) Put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, found := c.index[key]; found {
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, result: result, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.index[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}
