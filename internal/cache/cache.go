// Package cache implements the reference-counted cache framework
// shared by the page cache, the data-item cache and the MVCC entry
// cache (spec.md §4.1). It enforces at-most-one concurrent loader per
// key and an optional bounded capacity.
package cache

import (
	"fmt"
	"sync"
)

// ErrCacheFull is returned by Get when the cache is at capacity and
// the requested key is not already resident.
var ErrCacheFull = fmt.Errorf("cache: cache is full")

// Backend supplies the load and write-back hooks a concrete cache
// (pages, data items, entries) plugs into the generic framework.
type Backend interface {
	// GetForCache loads the resource for key from its backing store.
	// Called with no lock held; may block on I/O.
	GetForCache(key uint64) (interface{}, error)

	// ReleaseForCache writes the resource back (if dirty) before it is
	// evicted from the cache.
	ReleaseForCache(key uint64, value interface{})
}

// Cache is a generic, reference-counted, capacity-bounded cache keyed
// by uint64 (page numbers and UIDs are both uint64-shaped in this
// engine).
type Cache struct {
	backend  Backend
	maxCount int // 0 means unbounded

	mu       sync.Mutex
	cond     *sync.Cond
	cache    map[uint64]interface{}
	refCount map[uint64]int
	loading  map[uint64]bool
	count    int
}

// New builds a Cache backed by backend. maxCount <= 0 means unbounded.
func New(backend Backend, maxCount int) *Cache {
	c := &Cache{
		backend:  backend,
		maxCount: maxCount,
		cache:    make(map[uint64]interface{}),
		refCount: make(map[uint64]int),
		loading:  make(map[uint64]bool),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Get acquires the resource for key, incrementing its reference count.
// If another goroutine is already loading key, Get blocks until that
// load completes and then reuses its result.
func (c *Cache) Get(key uint64) (interface{}, error) {
	c.mu.Lock()
	for {
		if c.loading[key] {
			c.cond.Wait()
			continue
		}

		if v, ok := c.cache[key]; ok {
			c.refCount[key]++
			c.mu.Unlock()
			return v, nil
		}

		if c.maxCount > 0 && c.count >= c.maxCount {
			c.mu.Unlock()
			return nil, ErrCacheFull
		}

		c.count++
		c.loading[key] = true
		break
	}
	c.mu.Unlock()

	v, err := c.backend.GetForCache(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loading, key)
	if err != nil {
		c.count--
		c.cond.Broadcast()
		return nil, err
	}
	c.cache[key] = v
	c.refCount[key] = 1
	c.cond.Broadcast()
	return v, nil
}

// Release decrements key's reference count. At zero, the backend's
// write-back hook runs and the entry is evicted.
func (c *Cache) Release(key uint64) {
	c.mu.Lock()
	ref, ok := c.refCount[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	ref--
	if ref > 0 {
		c.refCount[key] = ref
		c.mu.Unlock()
		return
	}

	v := c.cache[key]
	delete(c.cache, key)
	delete(c.refCount, key)
	c.count--
	c.mu.Unlock()

	c.backend.ReleaseForCache(key, v)
}

// Close forces write-back of every resident entry, regardless of
// reference count. Used at engine shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	keys := make([]uint64, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.mu.Lock()
		v, ok := c.cache[k]
		if ok {
			delete(c.cache, k)
			delete(c.refCount, k)
			c.count--
		}
		c.mu.Unlock()
		if ok {
			c.backend.ReleaseForCache(k, v)
		}
	}
}
