package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"simdex/internal/base"
)

// LRU is a fixed-capacity least-recently-used cache.
type LRU[V any] struct {
	lru *freelru.LRU[base.PageID, V]
	counters
}

func hashPageID(id base.PageID) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

func NewLRU[V any](size int) (*LRU[V], error) {
	lru, err := freelru.New[base.PageID, V](uint32(size), hashPageID)
	if err != nil {
		return nil, err
	}
	c := &LRU[V]{lru: lru}
	lru.SetOnEvict(func(base.PageID, V) {
		c.evictions.Add(1)
	})
	return c, nil
}

func (c *LRU[V]) Get(id base.PageID) (V, bool) {
	v, ok := c.lru.Get(id)
	c.record(ok)
	return v, ok
}

// Put adds a node, replacing any existing entry for the id.
func (c *LRU[V]) Put(id base.PageID, v V) {
	c.lru.Add(id, v)
}

func (c *LRU[V]) Remove(id base.PageID) {
	c.lru.Remove(id)
}

func (c *LRU[V]) Purge() {
	c.lru.Purge()
}

// Len returns current number of cached entries
func (c *LRU[V]) Len() int {
	return c.lru.Len()
}

func (c *LRU[V]) Stats() Stats {
	return c.stats()
}

func (c *LRU[V]) Close() {}
