package chunk

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/quadview/quadview/pkg/observability"
)

// recencyEntries is the entry-count bound handed to the underlying LRU.
// The cache is bounded by bytes, not entries, so this just needs to be
// effectively unbounded; simplelru only uses it as an eviction threshold.
const recencyEntries = 1 << 30

// Cache is a byte-bounded, least-recently-used cache of materialized chunk
// payloads. Recency ordering comes from hashicorp's simplelru; the byte
// accounting is layered on top because simplelru bounds entry count, not
// resident bytes.
//
// Entry sizes are always computed from the live payload via ByteSize, both
// on insert and on eviction, so a payload that changed size while cached
// self-corrects the running total when it leaves.
//
// All methods are safe for concurrent use; completion callbacks run on
// worker goroutines, so the cache serializes its own mutations.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[Key, Payload]
	capacity int64
	bytes    int64
	logger   *log.Logger
}

// NewCache creates a cache bounded to capacity bytes. A non-positive
// capacity is treated as "one entry at a time": every insert evicts all
// others, which keeps the eviction loop trivially terminating.
func NewCache(capacity int64, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	// NewLRU only errors on a non-positive size; recencyEntries is constant.
	lru, _ := simplelru.NewLRU[Key, Payload](recencyEntries, nil)
	return &Cache{
		lru:      lru,
		capacity: capacity,
		logger:   logger,
	}
}

// Get returns the payload cached under key, marking it most recently used.
// Absence is a normal outcome, not an error.
func (c *Cache) Get(key Key) (Payload, bool) {
	c.mu.Lock()
	payload, ok := c.lru.Get(key)
	c.mu.Unlock()

	if ok {
		observability.Cache().OnHit(key.String())
	} else {
		observability.Cache().OnMiss(key.String())
	}
	return payload, ok
}

// Put inserts or overwrites the payload under key, then evicts
// least-recently-used entries until resident bytes fit the capacity again.
//
// Policy choices, deliberate and fixed:
//   - Zero-size payloads are always admitted and never evict anything.
//   - A payload larger than the whole capacity is admitted and left as the
//     sole resident entry; the next insert pushes it out. Each eviction
//     strictly reduces resident bytes, so the loop cannot spin.
func (c *Cache) Put(key Key, payload Payload) {
	size := payload.ByteSize()

	c.mu.Lock()
	if old, ok := c.lru.Peek(key); ok {
		c.lru.Remove(key)
		c.bytes -= int64(old.ByteSize())
	}
	c.lru.Add(key, payload)
	c.bytes += int64(size)

	var evicted []Key
	var evictedBytes []int
	for c.bytes > c.capacity && c.lru.Len() > 1 {
		k, v, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		n := v.ByteSize()
		c.bytes -= int64(n)
		evicted = append(evicted, k)
		evictedBytes = append(evictedBytes, n)
	}
	c.mu.Unlock()

	observability.Cache().OnInsert(key.String(), size)
	for i, k := range evicted {
		observability.Cache().OnEvict(k.String(), evictedBytes[i])
		c.logger.Debug("cache evict", "key", k, "bytes", evictedBytes[i])
	}
}

// Bytes returns the current resident byte total.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity returns the configured byte bound.
func (c *Cache) Capacity() int64 {
	return c.capacity
}

// Keys returns the resident keys from oldest to newest. Intended for tests
// and debug dumps.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes = 0
}
