package simdex

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"simdex/distance"
	"simdex/internal/base"
	"simdex/internal/cache"
	"simdex/internal/pager"
	"simdex/internal/storage"
)

// Space kinds stored in the header.
const (
	spaceSpatial uint8 = 1
	spaceMetric  uint8 = 2
)

// Tree is a paged similarity index over objects of type O.
//
// A Tree is not safe for concurrent use; callers serialize access.
type Tree[O any] struct {
	variant Variant
	opts    Options
	layout  layout[O]
	space   space[O]
	split   splitConfig
	store   storage.Store
	pager   *pager.Pager
	cache   cache.Cache[*node[O]]
	log     Logger
	stats   stats

	root    base.PageID
	height  int
	count   uint64
	kMax    int
	dim     int
	ids     *roaring.Bitmap
	rel     Relation[O]
	closed  bool
	created bool

	// reinserted marks the levels that already used forced reinsertion
	// during the current top-level insertion.
	reinserted *bitset.BitSet
}

// Header describes the persistent configuration of a tree.
type Header struct {
	Variant            Variant
	PageSize           int
	LeafCapacity       int
	DirCapacity        int
	MinFill            float64
	KMax               int
	Dim                int
	ObjectSize         int
	MaxSupernodeBlocks int
	Height             int
	Count              uint64
	Generation         uint64
}

// OpenSpatial opens or creates an R*-tree family index over float64 vectors
// of dimension dim.
func OpenSpatial(variant Variant, dim int, dist distance.Spatial, opts ...Option) (*Tree[[]float64], error) {
	switch {
	case !variant.spatial():
		return nil, errorf("%s is not a spatial variant", variant)
	case dim < 1:
		return nil, errorf("dimension must be positive, got %d", dim)
	case dist == nil:
		return nil, errorf("missing distance function")
	}
	return open(variant, VectorCodec{Dim: dim}, dim, func(calls *atomic.Uint64) space[[]float64] {
		return &spatialSpace{dist: dist, dim: dim, calls: calls}
	}, opts)
}

// OpenMetric opens or creates an M-tree family index. dist must satisfy the
// triangle inequality.
func OpenMetric[O any](variant Variant, codec Codec[O], dist distance.Func[O], opts ...Option) (*Tree[O], error) {
	switch {
	case !variant.metric():
		return nil, errorf("%s is not a metric variant", variant)
	case codec == nil || codec.Size() < 1:
		return nil, errorf("codec must encode objects into at least one byte")
	case dist == nil:
		return nil, errorf("missing distance function")
	}
	var check func(O) error
	if v, ok := codec.(Validator[O]); ok {
		check = v.Validate
	}
	return open(variant, codec, 0, func(calls *atomic.Uint64) space[O] {
		return &metricSpace[O]{dist: dist, check: check, calls: calls}
	}, opts)
}

func open[O any](variant Variant, codec Codec[O], dim int, mk func(*atomic.Uint64) space[O], options []Option) (*Tree[O], error) {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = DiscardLogger{}
	}
	if err := opts.validate(variant); err != nil {
		return nil, err
	}

	store, err := openStore(&opts)
	if err != nil {
		return nil, translate("open", err)
	}

	pageSize := opts.pageSize
	if pageSize == 0 {
		pageSize = base.DefaultPageSize
	}
	p, err := pager.Open(store, pager.Config{PageSize: pageSize, MaxPages: opts.maxPages})
	if err != nil {
		_ = store.Close()
		return nil, translate("open", err)
	}

	t := &Tree[O]{
		variant: variant,
		opts:    opts,
		store:   store,
		pager:   p,
		log:     opts.logger,
		dim:     dim,
	}
	t.space = mk(&t.stats.distanceCalcs)

	t.cache, err = cache.New[*node[O]](opts.cachePolicy, opts.cacheSize)
	if err == nil {
		if p.Created() {
			err = t.create(codec)
		} else {
			err = t.load(codec)
		}
	}
	if err != nil {
		if t.cache != nil {
			t.cache.Close()
		}
		_ = p.Close()
		return nil, translate("open", err)
	}

	t.log.Info("opened tree", "variant", variant, "path", opts.path, "created", t.created,
		"height", t.height, "count", t.count, "leafCapacity", t.split.leafCap, "dirCapacity", t.split.dirCap)
	return t, nil
}

func openStore(opts *Options) (storage.Store, error) {
	switch {
	case opts.path == "":
		return storage.NewMemory(), nil
	case opts.mmap:
		return storage.NewMMap(opts.path)
	default:
		return storage.NewFile(opts.path)
	}
}

func (t *Tree[O]) spaceKind() uint8 {
	if t.variant.spatial() {
		return spaceSpatial
	}
	return spaceMetric
}

// create initializes an empty store: capacities, an empty leaf as root and
// the first header generation.
func (t *Tree[O]) create(codec Codec[O]) error {
	opts := &t.opts
	if t.variant.reverseKNN() && opts.kMax == 0 {
		return errorf("%s needs k_max >= 1", t.variant)
	}
	if opts.maxBlocks > 1 && t.variant != XTree {
		return errorf("supernodes need the XTree variant, got %s", t.variant)
	}
	t.created = true
	t.kMax = opts.kMax
	t.layout = newLayout(codec, t.variant.spatial(), t.dim, t.kMax > 0)

	pageSize := t.pager.PageSize()
	leafCap := t.layout.capacity(pageSize, true)
	dirCap := t.layout.capacity(pageSize, false)
	if opts.leafCapacity > 0 {
		if opts.leafCapacity > leafCap {
			return errorf("leaf capacity %d exceeds the %d entries a %d byte page holds", opts.leafCapacity, leafCap, pageSize)
		}
		leafCap = opts.leafCapacity
	}
	if opts.dirCapacity > 0 {
		if opts.dirCapacity > dirCap {
			return errorf("directory capacity %d exceeds the %d entries a %d byte page holds", opts.dirCapacity, dirCap, pageSize)
		}
		dirCap = opts.dirCapacity
	}
	if leafCap < 2 || dirCap < 2 {
		return errorf("page size %d leaves room for %d leaf and %d directory entries, need at least 2",
			pageSize, leafCap, dirCap)
	}
	if leafCap < 10 || dirCap < 10 {
		t.log.Warn("small node capacity", "leafCapacity", leafCap, "dirCapacity", dirCap, "pageSize", pageSize)
	}

	minFill := opts.minFill
	if minFill == 0 {
		minFill = DefaultMinFill
	}
	maxBlocks := opts.maxBlocks
	if maxBlocks == 0 {
		maxBlocks = 1
		if t.variant == XTree {
			maxBlocks = DefaultMaxSupernodeBlocks
		}
	}
	// The entry count of a node is stored in 16 bits.
	maxBlocks = max(1, min(maxBlocks, math.MaxUint16/dirCap))

	t.split = t.splitConfig(leafCap, dirCap, minFill, maxBlocks)

	root, err := t.newNode(true)
	if err != nil {
		return err
	}
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.root = root.id
	t.height = 1
	t.ids = roaring.New()
	return t.commit()
}

// load adopts the stored header. Explicit options must agree with it.
func (t *Tree[O]) load(codec Codec[O]) error {
	m := t.pager.Meta()
	opts := &t.opts

	switch {
	case Variant(m.Variant) != t.variant:
		return errorf("store holds a %s, not a %s", Variant(m.Variant), t.variant)
	case m.Space != t.spaceKind():
		return fmt.Errorf("%w: space kind %d does not match variant %s", ErrCorruption, m.Space, t.variant)
	case int(m.ObjectSize) != codec.Size():
		return errorf("store holds %d byte objects, codec encodes %d", m.ObjectSize, codec.Size())
	case int(m.Dim) != t.dim:
		return errorf("store holds dimension %d, got %d", m.Dim, t.dim)
	case opts.pageSize != 0 && opts.pageSize != int(m.PageSize):
		return errorf("store uses page size %d, got %d", m.PageSize, opts.pageSize)
	case opts.kMax != 0 && opts.kMax != int(m.KMax):
		return errorf("store uses k_max %d, got %d", m.KMax, opts.kMax)
	case opts.leafCapacity != 0 && opts.leafCapacity != int(m.LeafCapacity):
		return errorf("store uses leaf capacity %d, got %d", m.LeafCapacity, opts.leafCapacity)
	case opts.dirCapacity != 0 && opts.dirCapacity != int(m.DirCapacity):
		return errorf("store uses directory capacity %d, got %d", m.DirCapacity, opts.dirCapacity)
	case opts.maxBlocks != 0 && opts.maxBlocks != int(m.MaxBlocks):
		return errorf("store uses %d supernode blocks, got %d", m.MaxBlocks, opts.maxBlocks)
	case opts.minFill != 0 && perMille(opts.minFill) != m.MinFill:
		return errorf("store uses min fill %v, got %v", float64(m.MinFill)/1000, opts.minFill)
	case t.variant.reverseKNN() != (m.KMax > 0):
		return fmt.Errorf("%w: k_max %d stored for %s", ErrCorruption, m.KMax, t.variant)
	case m.Height < 1 || m.Root == base.HeaderPageID:
		return fmt.Errorf("%w: root %d at height %d", ErrCorruption, m.Root, m.Height)
	}

	t.kMax = int(m.KMax)
	t.layout = newLayout(codec, t.variant.spatial(), t.dim, t.kMax > 0)
	pageSize := int(m.PageSize)
	if int(m.LeafCapacity) > t.layout.capacity(pageSize, true) || int(m.DirCapacity) > t.layout.capacity(pageSize, false) {
		return fmt.Errorf("%w: capacities %d/%d do not fit %d byte pages",
			ErrCorruption, m.LeafCapacity, m.DirCapacity, pageSize)
	}
	t.split = t.splitConfig(int(m.LeafCapacity), int(m.DirCapacity), float64(m.MinFill)/1000, int(max(1, m.MaxBlocks)))

	t.root = m.Root
	t.height = int(m.Height)
	t.count = m.Count
	t.ids = roaring.New()
	if data := t.pager.IDSet(); len(data) > 0 {
		if err := t.ids.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("%w: id set: %v", ErrCorruption, err)
		}
	}
	if t.ids.GetCardinality() != t.count {
		return fmt.Errorf("%w: id set holds %d ids, header counts %d", ErrCorruption, t.ids.GetCardinality(), t.count)
	}
	return nil
}

func (t *Tree[O]) splitConfig(leafCap, dirCap int, minFill float64, maxBlocks int) splitConfig {
	return splitConfig{
		strategy:      t.opts.splitStrategy(t.variant),
		minFill:       minFill,
		leafCap:       leafCap,
		dirCap:        dirCap,
		maxOverlap:    t.opts.maxOverlap,
		overlapMetric: t.opts.overlapMetric,
		maxBlocks:     maxBlocks,
		log:           t.log,
	}
}

func perMille(f float64) uint16 {
	return uint16(math.Round(f * 1000))
}

// commit persists the header, the freelist and the id set.
func (t *Tree[O]) commit() error {
	idset, err := t.ids.ToBytes()
	if err != nil {
		return err
	}
	meta := base.Meta{
		Magic:        base.MagicNumber,
		Version:      base.FormatVersion,
		Variant:      uint8(t.variant),
		Space:        t.spaceKind(),
		DirCapacity:  uint32(t.split.dirCap),
		LeafCapacity: uint32(t.split.leafCap),
		MinFill:      perMille(t.split.minFill),
		KMax:         uint16(t.kMax),
		ObjectSize:   uint32(t.layout.codec.Size()),
		Dim:          uint32(t.dim),
		MaxBlocks:    uint16(t.split.maxBlocks),
		Root:         t.root,
		Height:       uint32(t.height),
		Count:        t.count,
	}
	return t.pager.Commit(meta, idset)
}

func (t *Tree[O]) checkOpen() error {
	if t.closed {
		return ErrClosed
	}
	return nil
}

// fail translates err for op. Nodes may have been changed in place before
// the failure, so the cache is dropped to force a re-read of what the pages
// actually hold.
func (t *Tree[O]) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	t.cache.Purge()
	return translate(op, err)
}

// Sync persists the header, the freelist and the id set and flushes the
// store. Node pages are written as they change.
func (t *Tree[O]) Sync() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return translate("sync", t.commit())
}

// Close syncs and closes the tree. Closing twice is a no-op.
func (t *Tree[O]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	err := t.commit()
	if err != nil {
		t.log.Error("failed to commit header on close", "error", err)
	}
	t.cache.Close()
	if cerr := t.pager.Close(); cerr != nil {
		t.log.Error("failed to close store", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	return translate("close", err)
}

// Len returns the number of indexed objects.
func (t *Tree[O]) Len() int {
	return int(t.count)
}

// Height returns the number of levels, 1 for a tree that is a single leaf.
func (t *Tree[O]) Height() int {
	return t.height
}

// KMax returns the largest k reverse kNN queries accept, 0 if the tree keeps
// no kNN bounds.
func (t *Tree[O]) KMax() int {
	return t.kMax
}

// Variant returns the tree family member.
func (t *Tree[O]) Variant() Variant {
	return t.variant
}

// Contains reports whether id is indexed.
func (t *Tree[O]) Contains(id DBID) bool {
	return t.ids.Contains(uint32(id))
}

// Header returns the persistent configuration.
func (t *Tree[O]) Header() Header {
	return Header{
		Variant:            t.variant,
		PageSize:           t.pager.PageSize(),
		LeafCapacity:       t.split.leafCap,
		DirCapacity:        t.split.dirCap,
		MinFill:            t.split.minFill,
		KMax:               t.kMax,
		Dim:                t.dim,
		ObjectSize:         t.layout.codec.Size(),
		MaxSupernodeBlocks: t.split.maxBlocks,
		Height:             t.height,
		Count:              t.count,
		Generation:         t.pager.Meta().Generation,
	}
}

func (t *Tree[O]) capacity(n *node[O]) int {
	if n.leaf {
		return n.blocks * t.split.leafCap
	}
	return n.blocks * t.split.dirCap
}

// blocksFor is the number of pages n needs, at least one.
func (t *Tree[O]) blocksFor(n *node[O]) int {
	c := t.split.dirCap
	if n.leaf {
		c = t.split.leafCap
	}
	return max(1, (len(n.entries)+c-1)/c)
}

func (t *Tree[O]) readNode(id base.PageID) (*node[O], error) {
	t.stats.nodeReads.Add(1)
	if n, ok := t.cache.Get(id); ok {
		return n, nil
	}
	data, err := t.pager.ReadChain(id, base.KindNode)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	n, err := t.layout.decode(id, data)
	if err != nil {
		return nil, err
	}
	t.cache.Put(id, n)
	return n, nil
}

func (t *Tree[O]) child(e *entry[O]) (*node[O], error) {
	return t.readNode(pageOf(e))
}

func (t *Tree[O]) writeNode(n *node[O]) error {
	t.stats.nodeWrites.Add(1)
	if err := t.pager.WriteChain(n.id, base.KindNode, t.layout.encode(n)); err != nil {
		t.cache.Remove(n.id)
		return fmt.Errorf("node %d: %w", n.id, err)
	}
	t.cache.Put(n.id, n)
	return nil
}

func (t *Tree[O]) newNode(leaf bool) (*node[O], error) {
	id, err := t.pager.Allocate()
	if err != nil {
		return nil, err
	}
	return &node[O]{id: id, leaf: leaf, blocks: 1}, nil
}

func (t *Tree[O]) freeNode(id base.PageID) error {
	t.cache.Remove(id)
	return t.pager.FreeChain(id)
}

func pageOf[O any](e *entry[O]) base.PageID {
	return base.PageID(e.ref)
}
