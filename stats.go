package simdex

import "sync/atomic"

// Stats is a point-in-time copy of a tree's counters.
type Stats struct {
	DistanceCalcs uint64
	NodeReads     uint64 // node dereferences, cached or not
	NodeWrites    uint64
	PageReads     uint64
	PageWrites    uint64
	CacheHits     uint64
	CacheMisses   uint64
	CacheEvicts   uint64

	Splits     uint64
	Reinserts  uint64 // forced reinsertions, counted per overflowing node
	Supernodes uint64 // supernode creations and extensions

	RangeQueries   uint64
	KNNQueries     uint64
	RKNNQueries    uint64
	BatchNNQueries uint64 // query objects answered by batch kNN passes

	Height    int
	Count     uint64
	NumPages  uint64
	FreePages uint64
}

type stats struct {
	distanceCalcs atomic.Uint64
	nodeReads     atomic.Uint64
	nodeWrites    atomic.Uint64
	splits        atomic.Uint64
	reinserts     atomic.Uint64
	supernodes    atomic.Uint64
	rangeQueries  atomic.Uint64
	knnQueries    atomic.Uint64
	rknnQueries   atomic.Uint64
	batchNN       atomic.Uint64
}

// Stats returns the tree's counters.
func (t *Tree[O]) Stats() Stats {
	ps := t.pager.Stats()
	cs := t.cache.Stats()
	return Stats{
		DistanceCalcs:  t.stats.distanceCalcs.Load(),
		NodeReads:      t.stats.nodeReads.Load(),
		NodeWrites:     t.stats.nodeWrites.Load(),
		PageReads:      ps.PageReads,
		PageWrites:     ps.PageWrites,
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		CacheEvicts:    cs.Evictions,
		Splits:         t.stats.splits.Load(),
		Reinserts:      t.stats.reinserts.Load(),
		Supernodes:     t.stats.supernodes.Load(),
		RangeQueries:   t.stats.rangeQueries.Load(),
		KNNQueries:     t.stats.knnQueries.Load(),
		RKNNQueries:    t.stats.rknnQueries.Load(),
		BatchNNQueries: t.stats.batchNN.Load(),
		Height:         t.height,
		Count:          t.count,
		NumPages:       ps.NumPages,
		FreePages:      ps.FreePages,
	}
}
