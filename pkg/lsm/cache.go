package lsm

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// CacheKey uniquely identifies one block across every SSTable an engine has
// open. The file id is a stable hash of the file path, so distinct files
// never collide and keys survive reopen.
type CacheKey struct {
	FileID      uint64
	BlockOffset uint64
}

// NewCacheKey builds a cache key from a file path and a block offset.
func NewCacheKey(path string, offset uint64) CacheKey {
	return CacheKey{
		FileID:      xxhash.Sum64String(path),
		BlockOffset: offset,
	}
}

// GlobalBlockCache is a bounded LRU of decompressed block bytes shared by
// all readers of one engine. Cached slices are shared by reference; hits
// never copy.
type GlobalBlockCache struct {
	mu       sync.Mutex
	capacity int
	items    map[CacheKey]*list.Element
	lru      *list.List

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key   CacheKey
	value []byte
}

// NewGlobalBlockCache sizes the cache from a total byte budget and the
// approximate block size: capacity = sizeMiB·2^20 / blockSize entries,
// minimum one.
func NewGlobalBlockCache(sizeMiB, blockSize int) *GlobalBlockCache {
	capacity := sizeMiB * 1024 * 1024 / blockSize
	if capacity < 1 {
		capacity = 1
	}
	return &GlobalBlockCache{
		capacity: capacity,
		items:    make(map[CacheKey]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached bytes for key, marking the entry most recently used.
func (c *GlobalBlockCache) Get(key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).value, true
	}
	c.misses++
	return nil, false
}

// Put inserts value under key, evicting the least recently used entry when
// over capacity.
func (c *GlobalBlockCache) Put(key CacheKey, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CacheStats is a point-in-time snapshot of cache usage.
type CacheStats struct {
	Len    int
	Cap    int
	Hits   uint64
	Misses uint64
}

// Stats returns current length, capacity, and hit counters.
func (c *GlobalBlockCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Len:    c.lru.Len(),
		Cap:    c.capacity,
		Hits:   c.hits,
		Misses: c.misses,
	}
}
