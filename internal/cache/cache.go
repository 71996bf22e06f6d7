// Package cache holds decoded nodes keyed by page id. Every backend is
// allowed to drop entries; callers treat a miss as "decode from the pager".
package cache

import (
	"sync/atomic"

	"simdex/internal/base"
)

const (
	MinCacheSize = 16 // Minimum: hold a root-to-leaf path plus split siblings
)

// Policy selects the eviction strategy
type Policy int

const (
	PolicyLRU Policy = iota
	PolicyTinyLFU
	PolicyNone
)

// Cache is a node cache keyed by page id.
type Cache[V any] interface {
	Get(id base.PageID) (V, bool)
	Put(id base.PageID, v V)
	Remove(id base.PageID)
	Purge()
	Stats() Stats
	Close()
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New creates a cache for the given policy. A size of zero disables caching.
func New[V any](policy Policy, size int) (Cache[V], error) {
	if size <= 0 || policy == PolicyNone {
		return NewNop[V](), nil
	}
	size = max(size, MinCacheSize)
	switch policy {
	case PolicyTinyLFU:
		return NewTinyLFU[V](size)
	default:
		return NewLRU[V](size)
	}
}

type counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counters) stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Nop never stores anything; every Get is a miss.
type Nop[V any] struct {
	counters
}

func NewNop[V any]() *Nop[V] {
	return &Nop[V]{}
}

func (n *Nop[V]) Get(base.PageID) (V, bool) {
	n.misses.Add(1)
	var zero V
	return zero, false
}

func (n *Nop[V]) Put(base.PageID, V) {}
func (n *Nop[V]) Remove(base.PageID) {}
func (n *Nop[V]) Purge()             {}
func (n *Nop[V]) Stats() Stats       { return n.stats() }
func (n *Nop[V]) Close()             {}
