package simdex

import (
	"math"

	"simdex/internal/base"
	"simdex/internal/cache"
)

// Variant selects the tree family member. It fixes the geometry of routing
// regions and whether kNN distance bounds are maintained.
type Variant uint8

const (
	// MTree indexes generic metric objects under covering balls.
	MTree Variant = iota + 1
	// MkMaxTree is an M-tree that keeps the k_max-NN distance of every entry
	// and answers reverse kNN queries.
	MkMaxTree
	// RStarTree indexes vectors under minimum bounding rectangles with
	// forced reinsertion.
	RStarTree
	// RdKNNTree is an R*-tree that keeps the k_max-NN distance of every
	// entry and answers reverse kNN queries.
	RdKNNTree
	// XTree is an R*-tree whose directory nodes turn into supernodes instead
	// of splitting with high overlap.
	XTree
)

func (v Variant) String() string {
	switch v {
	case MTree:
		return "MTree"
	case MkMaxTree:
		return "MkMaxTree"
	case RStarTree:
		return "RStarTree"
	case RdKNNTree:
		return "RdKNNTree"
	case XTree:
		return "XTree"
	}
	return "Variant(?)"
}

func (v Variant) spatial() bool {
	return v == RStarTree || v == RdKNNTree || v == XTree
}

func (v Variant) metric() bool {
	return v == MTree || v == MkMaxTree
}

// reverseKNN reports whether the variant maintains kNN distance bounds.
func (v Variant) reverseKNN() bool {
	return v == MkMaxTree || v == RdKNNTree
}

// SplitStrategy selects how an overflowing node is divided.
type SplitStrategy uint8

const (
	// SplitDefault picks the variant's natural strategy: SplitRStar for the
	// R*-tree family, SplitXTree for the X-tree and SplitMinMaxRadius for
	// metric trees.
	SplitDefault SplitStrategy = iota
	SplitRStar
	SplitXTree
	SplitMinMaxRadius
	SplitMaxLowerBound
)

func (s SplitStrategy) String() string {
	switch s {
	case SplitDefault:
		return "Default"
	case SplitRStar:
		return "RStar"
	case SplitXTree:
		return "XTree"
	case SplitMinMaxRadius:
		return "MinMaxRadius"
	case SplitMaxLowerBound:
		return "MaxLowerBound"
	}
	return "SplitStrategy(?)"
}

// OverlapMetric measures the overlap of a candidate X-tree split.
type OverlapMetric uint8

const (
	// OverlapData is the fraction of entries whose region intersects the
	// overlap of the two halves.
	OverlapData OverlapMetric = iota
	// OverlapVolume is the overlap volume divided by the summed volume of
	// the two halves.
	OverlapVolume
)

// CachePolicy selects the node cache eviction strategy.
type CachePolicy = cache.Policy

const (
	CacheLRU     = cache.PolicyLRU
	CacheTinyLFU = cache.PolicyTinyLFU
	CacheNone    = cache.PolicyNone
)

// BulkLoad selects how InsertAll and Index build an empty tree.
type BulkLoad uint8

const (
	// BulkLoadNone inserts one object at a time and refreshes kNN bounds once
	// at the end.
	BulkLoadNone BulkLoad = iota
	// BulkLoadSTR packs an empty spatial tree bottom-up with
	// sort-tile-recursive partitioning.
	BulkLoadSTR
)

const (
	DefaultCacheSize          = 1024
	DefaultReinsertFraction   = 0.3
	DefaultMinFill            = 0.4
	DefaultMaxOverlap         = 0.2
	DefaultMaxSupernodeBlocks = 64
)

// Options configures a tree.
//
// Page size, capacities, minimum fill, k_max and the supernode limit are
// stored in the header when the tree is created. Zero values mean "computed"
// on creation and "as stored" on reopen; an explicit value that differs from
// the stored one is rejected.
type Options struct {
	pageSize         int
	cacheSize        int
	cachePolicy      CachePolicy
	path             string
	mmap             bool
	kMax             int
	split            SplitStrategy
	reinsertFraction float64
	minFill          float64
	maxOverlap       float64
	overlapMetric    OverlapMetric
	maxBlocks        int
	bulkLoad         BulkLoad
	leafCapacity     int
	dirCapacity      int
	maxPages         uint64
	logger           Logger
}

// DefaultOptions returns an in-memory configuration with an LRU node cache.
func DefaultOptions() Options {
	return Options{
		cacheSize:        DefaultCacheSize,
		cachePolicy:      CacheLRU,
		reinsertFraction: DefaultReinsertFraction,
		maxOverlap:       DefaultMaxOverlap,
		overlapMetric:    OverlapData,
		logger:           DiscardLogger{},
	}
}

// Option configures tree options using the functional options pattern.
type Option func(*Options)

// WithPageSize sets the page size in bytes. Must be a multiple of 8 between
// 512 bytes and 1 MiB.
func WithPageSize(size int) Option {
	return func(opts *Options) {
		opts.pageSize = size
	}
}

// WithCacheSize sets the maximum number of decoded nodes kept in memory.
// Zero disables the cache.
func WithCacheSize(nodes int) Option {
	return func(opts *Options) {
		opts.cacheSize = nodes
	}
}

// WithCachePolicy selects the node cache eviction strategy.
func WithCachePolicy(policy CachePolicy) Option {
	return func(opts *Options) {
		opts.cachePolicy = policy
	}
}

// WithPath persists the tree in the file at path. Without it the tree lives
// in memory and is discarded on Close.
func WithPath(path string) Option {
	return func(opts *Options) {
		opts.path = path
	}
}

// WithMMap accesses the file through a shared memory mapping instead of
// positional reads and writes. Ignored for in-memory trees.
func WithMMap() Option {
	return func(opts *Options) {
		opts.mmap = true
	}
}

// WithKMax sets the largest k reverse kNN queries may ask for. Required by
// MkMaxTree and RdKNNTree, rejected by the other variants.
func WithKMax(k int) Option {
	return func(opts *Options) {
		opts.kMax = k
	}
}

// WithSplitStrategy overrides the variant's default split strategy.
func WithSplitStrategy(s SplitStrategy) Option {
	return func(opts *Options) {
		opts.split = s
	}
}

// WithReinsertFraction sets the share of entries removed and reinserted when
// a spatial node first overflows on a level. Zero disables reinsertion.
func WithReinsertFraction(f float64) Option {
	return func(opts *Options) {
		opts.reinsertFraction = f
	}
}

// WithMinFill sets the minimum share of capacity each half of a spatial split
// receives.
func WithMinFill(f float64) Option {
	return func(opts *Options) {
		opts.minFill = f
	}
}

// WithMaxOverlap sets the overlap above which the X-tree avoids a split.
func WithMaxOverlap(fraction float64, metric OverlapMetric) Option {
	return func(opts *Options) {
		opts.maxOverlap = fraction
		opts.overlapMetric = metric
	}
}

// WithMaxSupernodeBlocks caps the size of an X-tree supernode, in pages.
func WithMaxSupernodeBlocks(blocks int) Option {
	return func(opts *Options) {
		opts.maxBlocks = blocks
	}
}

// WithBulkLoad selects the strategy used by InsertAll and Index.
func WithBulkLoad(b BulkLoad) Option {
	return func(opts *Options) {
		opts.bulkLoad = b
	}
}

// WithLeafCapacity lowers the number of entries per leaf below what fits in a
// page.
func WithLeafCapacity(n int) Option {
	return func(opts *Options) {
		opts.leafCapacity = n
	}
}

// WithDirCapacity lowers the number of entries per directory node below what
// fits in a page.
func WithDirCapacity(n int) Option {
	return func(opts *Options) {
		opts.dirCapacity = n
	}
}

// WithMaxPages limits the number of pages the tree may allocate, the header
// page included. Zero means no limit.
func WithMaxPages(n uint64) Option {
	return func(opts *Options) {
		opts.maxPages = n
	}
}

// WithLogger sets the logger. *slog.Logger satisfies Logger directly.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}

func (o *Options) validate(v Variant) error {
	switch {
	case o.kMax < 0:
		return errorf("k_max must not be negative, got %d", o.kMax)
	case o.kMax > math.MaxUint16:
		return errorf("k_max %d exceeds %d", o.kMax, math.MaxUint16)
	case o.pageSize != 0 && !base.ValidPageSize(o.pageSize):
		return errorf("page size must be a multiple of 8 in [%d, %d], got %d", base.MinPageSize, base.MaxPageSize, o.pageSize)
	case o.cacheSize < 0:
		return errorf("cache size must not be negative, got %d", o.cacheSize)
	case o.reinsertFraction < 0 || o.reinsertFraction >= 1 || math.IsNaN(o.reinsertFraction):
		return errorf("reinsert fraction must be in [0, 1), got %v", o.reinsertFraction)
	case o.minFill < 0 || o.minFill > 0.5 || math.IsNaN(o.minFill):
		return errorf("min fill must be in [0, 0.5], got %v", o.minFill)
	case o.maxOverlap < 0 || o.maxOverlap > 1 || math.IsNaN(o.maxOverlap):
		return errorf("max overlap must be in [0, 1], got %v", o.maxOverlap)
	case o.maxBlocks < 0 || o.maxBlocks > math.MaxUint8:
		return errorf("max supernode blocks must be in [1, %d], got %d", math.MaxUint8, o.maxBlocks)
	case o.leafCapacity < 0 || o.dirCapacity < 0:
		return errorf("capacities must not be negative")
	case o.cachePolicy != CacheLRU && o.cachePolicy != CacheTinyLFU && o.cachePolicy != CacheNone:
		return errorf("unknown cache policy %d", o.cachePolicy)
	case o.bulkLoad == BulkLoadSTR && !v.spatial():
		return errorf("STR bulk loading needs a spatial variant, got %s", v)
	}

	if o.kMax > 0 && !v.reverseKNN() {
		return unsupportedf("%s keeps no kNN bounds, k_max must be unset", v)
	}

	switch o.split {
	case SplitDefault:
	case SplitRStar:
		if !v.spatial() {
			return errorf("%s split needs a spatial variant, got %s", o.split, v)
		}
	case SplitXTree:
		if v != XTree {
			return errorf("%s split needs the XTree variant, got %s", o.split, v)
		}
	case SplitMinMaxRadius, SplitMaxLowerBound:
		if !v.metric() {
			return errorf("%s split needs a metric variant, got %s", o.split, v)
		}
	default:
		return errorf("unknown split strategy %d", o.split)
	}
	return nil
}

// splitStrategy resolves SplitDefault for the variant.
func (o *Options) splitStrategy(v Variant) SplitStrategy {
	if o.split != SplitDefault {
		return o.split
	}
	switch {
	case v == XTree:
		return SplitXTree
	case v.spatial():
		return SplitRStar
	default:
		return SplitMinMaxRadius
	}
}
