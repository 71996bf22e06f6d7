package simdex

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"simdex/distance"
)

// space is the geometry of routing regions. The engine is written against it
// once; spatial trees route with bounding rectangles, metric trees with a
// routing object and covering radius.
type space[O any] interface {
	distance(a, b O) float64

	// bounds returns a lower bound of the distance from q to anything stored
	// below e. For leaf entries it is the exact distance. d is the distance
	// from q to e's routing object (metric trees only) and is used to prune
	// e's children.
	bounds(q O, e *entry[O], leaf bool) (lb, d float64)

	// skip reports whether e can be pruned for search radius r without a
	// distance computation, given dq, the distance from q to the routing
	// object of the node holding e.
	skip(dq float64, e *entry[O], r float64) bool

	// contains reports whether obj may be stored below directory entry e.
	contains(e *entry[O], obj O) bool

	// parentDist is the distance stored in an entry for obj routed under
	// routing. Spatial trees store zero.
	parentDist(obj, routing O) float64

	// chooseSubtree picks the entry of directory node n to descend into for
	// e. childLen reads the entry count of a child; it is only consulted to
	// break ties.
	chooseSubtree(n *node[O], e *entry[O], leaf bool, childLen func(i int) (int, error)) (int, error)

	// cover recomputes directory entry e from its child c. Children's
	// parent distances must already be relative to e.obj.
	cover(e *entry[O], c *node[O])

	split(n *node[O], cfg *splitConfig) splitResult[O]

	// reinsertOrder lists entry indices farthest from the node's center
	// first, or nil if the geometry does not reinsert.
	reinsertOrder(n *node[O]) []int

	// checkCover reports a violation of e covering its child c.
	checkCover(e *entry[O], c *node[O]) error

	// validate rejects objects the geometry cannot index.
	validate(obj O) error

	// pack groups entries into nodes of at most capacity entries for a
	// bottom-up build, or returns nil if the geometry has no packing order.
	pack(entries []entry[O], capacity int, leaf bool) [][]entry[O]
}

type splitConfig struct {
	strategy      SplitStrategy
	minFill       float64
	leafCap       int
	dirCap        int
	maxOverlap    float64
	overlapMetric OverlapMetric
	maxBlocks     int
	log           Logger
}

// minEntries is the smallest group a spatial split of n entries may
// produce. Nodes of four or more entries keep at least two on each side, so
// small capacities cannot degrade into chains of 1/n splits.
func (c *splitConfig) minEntries(leaf bool, n int) int {
	capacity := c.dirCap
	if leaf {
		capacity = c.leafCap
	}
	m := int(float64(capacity) * c.minFill)
	if n >= 4 {
		m = max(m, 2)
	}
	return max(1, min(m, n/2))
}

// splitResult holds the two halves of a split. Entries carry parent distances
// relative to their group's routing object. supernode asks the engine to
// grow the node by a block instead.
type splitResult[O any] struct {
	groups    [2][]entry[O]
	routing   [2]O
	supernode bool
}

// coverSlack absorbs rounding when a covering radius is compared against a
// recomputed distance.
func coverSlack(r float64) float64 {
	return 1e-9 * max(1, math.Abs(r))
}

// metricSpace routes by covering balls around routing objects.
type metricSpace[O any] struct {
	dist  distance.Func[O]
	check func(O) error // from a Validator codec, may be nil
	calls *atomic.Uint64
}

func (s *metricSpace[O]) distance(a, b O) float64 {
	s.calls.Add(1)
	return s.dist.Distance(a, b)
}

func (s *metricSpace[O]) bounds(q O, e *entry[O], leaf bool) (float64, float64) {
	d := s.distance(q, e.obj)
	if leaf {
		return d, d
	}
	return max(0, d-e.radius), d
}

func (s *metricSpace[O]) skip(dq float64, e *entry[O], r float64) bool {
	return math.Abs(dq-e.parentDist)-e.radius > r
}

func (s *metricSpace[O]) contains(e *entry[O], obj O) bool {
	return s.distance(obj, e.obj) <= e.radius+coverSlack(e.radius)
}

func (s *metricSpace[O]) parentDist(obj, routing O) float64 {
	return s.distance(obj, routing)
}

func (s *metricSpace[O]) chooseSubtree(n *node[O], e *entry[O], _ bool, childLen func(int) (int, error)) (int, error) {
	dists := make([]float64, len(n.entries))
	best, bestDist := -1, math.Inf(1)
	for i := range n.entries {
		dists[i] = s.distance(e.obj, n.entries[i].obj)
		if dists[i] <= n.entries[i].radius && dists[i] < bestDist {
			best, bestDist = i, dists[i]
		}
	}
	if best >= 0 {
		return best, nil
	}

	// No ball contains the object: least radius enlargement, then the
	// smaller resulting radius, then the emptier child.
	type cand struct {
		i           int
		grow, after float64
	}
	cands := make([]cand, len(n.entries))
	for i := range n.entries {
		cands[i] = cand{i: i, grow: dists[i] - n.entries[i].radius, after: dists[i]}
	}
	slices.SortStableFunc(cands, func(a, b cand) int {
		if c := cmp.Compare(a.grow, b.grow); c != 0 {
			return c
		}
		return cmp.Compare(a.after, b.after)
	})
	ties := 1
	for ties < len(cands) && cands[ties].grow == cands[0].grow && cands[ties].after == cands[0].after {
		ties++
	}
	if ties == 1 {
		return cands[0].i, nil
	}
	return fewestEntries(cands[:ties], func(c cand) int { return c.i }, childLen)
}

// fewestEntries picks the candidate whose child holds the fewest entries,
// keeping the earlier candidate on ties.
func fewestEntries[T any](cands []T, index func(T) int, childLen func(int) (int, error)) (int, error) {
	best, bestLen := -1, math.MaxInt
	for _, c := range cands {
		n, err := childLen(index(c))
		if err != nil {
			return 0, err
		}
		if n < bestLen {
			best, bestLen = index(c), n
		}
	}
	return best, nil
}

func (s *metricSpace[O]) cover(e *entry[O], c *node[O]) {
	var radius, knn float64
	for i := range c.entries {
		ce := &c.entries[i]
		radius = max(radius, ce.parentDist+ce.radius)
		knn = max(knn, ce.knn)
	}
	e.radius = radius
	e.knn = knn
}

func (s *metricSpace[O]) split(n *node[O], cfg *splitConfig) splitResult[O] {
	if cfg.strategy == SplitMaxLowerBound {
		return s.maxLowerBoundSplit(n.entries)
	}
	return s.minMaxRadiusSplit(n.entries)
}

func (s *metricSpace[O]) reinsertOrder(*node[O]) []int {
	return nil
}

func (s *metricSpace[O]) validate(obj O) error {
	if s.check == nil {
		return nil
	}
	return s.check(obj)
}

func (s *metricSpace[O]) pack([]entry[O], int, bool) [][]entry[O] {
	return nil
}

func (s *metricSpace[O]) checkCover(e *entry[O], c *node[O]) error {
	for i := range c.entries {
		ce := &c.entries[i]
		d := s.distance(ce.obj, e.obj)
		if math.Abs(d-ce.parentDist) > coverSlack(d) {
			return fmt.Errorf("entry %d of page %d: parent distance %v, actual %v", i, c.id, ce.parentDist, d)
		}
		if ce.parentDist+ce.radius > e.radius+coverSlack(e.radius) {
			return fmt.Errorf("entry %d of page %d: ball %v+%v escapes covering radius %v",
				i, c.id, ce.parentDist, ce.radius, e.radius)
		}
	}
	return nil
}

// spatialSpace routes vectors by minimum bounding rectangles.
type spatialSpace struct {
	dist  distance.Spatial
	dim   int
	calls *atomic.Uint64
}

func (s *spatialSpace) distance(a, b []float64) float64 {
	s.calls.Add(1)
	return s.dist.Distance(a, b)
}

func (s *spatialSpace) bounds(q []float64, e *entry[[]float64], leaf bool) (float64, float64) {
	if leaf {
		d := s.distance(q, e.obj)
		return d, d
	}
	s.calls.Add(1)
	lb := s.dist.MinDist(q, e.rect.min, e.rect.max)
	return lb, lb
}

func (s *spatialSpace) skip(float64, *entry[[]float64], float64) bool {
	return false
}

func (s *spatialSpace) contains(e *entry[[]float64], p []float64) bool {
	return e.rect.containsPoint(p)
}

func (s *spatialSpace) validate(p []float64) error {
	return VectorCodec{Dim: s.dim}.Validate(p)
}

func (s *spatialSpace) parentDist([]float64, []float64) float64 {
	return 0
}

// entryRect is the region of an entry: its MBR, or the point of a leaf entry.
func entryRect(e *entry[[]float64], leaf bool) rect {
	if leaf {
		return pointRect(e.obj)
	}
	return e.rect
}

func entryRects(n *node[[]float64]) []rect {
	rs := make([]rect, len(n.entries))
	for i := range n.entries {
		rs[i] = entryRect(&n.entries[i], n.leaf)
	}
	return rs
}

func (s *spatialSpace) chooseSubtree(n *node[[]float64], e *entry[[]float64], leaf bool, childLen func(int) (int, error)) (int, error) {
	er := entryRect(e, leaf)
	best := []int{0}
	bestEnl := n.entries[0].rect.enlargement(er)
	bestVol := n.entries[0].rect.volume()
	for i := 1; i < len(n.entries); i++ {
		enl := n.entries[i].rect.enlargement(er)
		vol := n.entries[i].rect.volume()
		switch {
		case enl < bestEnl || (enl == bestEnl && vol < bestVol):
			best, bestEnl, bestVol = []int{i}, enl, vol
		case enl == bestEnl && vol == bestVol:
			best = append(best, i)
		}
	}
	if len(best) == 1 {
		return best[0], nil
	}
	return fewestEntries(best, func(i int) int { return i }, childLen)
}

func (s *spatialSpace) cover(e *entry[[]float64], c *node[[]float64]) {
	b := entryRect(&c.entries[0], c.leaf).clone()
	knn := c.entries[0].knn
	for i := 1; i < len(c.entries); i++ {
		b.extend(entryRect(&c.entries[i], c.leaf))
		knn = max(knn, c.entries[i].knn)
	}
	e.rect = b
	e.knn = knn
}

func (s *spatialSpace) split(n *node[[]float64], cfg *splitConfig) splitResult[[]float64] {
	rects := entryRects(n)
	m := cfg.minEntries(n.leaf, len(rects))

	var d distribution
	if cfg.strategy == SplitXTree && !n.leaf {
		var super bool
		d, super = xtreeDistribution(rects, m, n.blocks, cfg)
		if super {
			return splitResult[[]float64]{supernode: true}
		}
	} else {
		d = rstarDistribution(rects, m)
	}

	var res splitResult[[]float64]
	res.groups[0] = make([]entry[[]float64], 0, d.k)
	res.groups[1] = make([]entry[[]float64], 0, len(d.order)-d.k)
	for i, idx := range d.order {
		g := 0
		if i >= d.k {
			g = 1
		}
		res.groups[g] = append(res.groups[g], n.entries[idx])
	}
	return res
}

// reinsertOrder sorts entries by the distance of their center to the node's
// center, farthest first, ties by ref.
func (s *spatialSpace) reinsertOrder(n *node[[]float64]) []int {
	rects := entryRects(n)
	b := boundingRect(rects)
	dist := make([]float64, len(rects))
	for i, r := range rects {
		var sum float64
		for d := 0; d < s.dim; d++ {
			diff := r.center(d) - b.center(d)
			sum += diff * diff
		}
		dist[i] = sum
	}
	order := make([]int, len(rects))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(dist[b], dist[a]); c != 0 {
			return c
		}
		return cmp.Compare(n.entries[a].ref, n.entries[b].ref)
	})
	return order
}

func (s *spatialSpace) checkCover(e *entry[[]float64], c *node[[]float64]) error {
	for i := range c.entries {
		if r := entryRect(&c.entries[i], c.leaf); !e.rect.containsRect(r) {
			return fmt.Errorf("entry %d of page %d: %v..%v escapes %v..%v",
				i, c.id, r.min, r.max, e.rect.min, e.rect.max)
		}
	}
	return nil
}

var (
	_ space[[]float64] = (*spatialSpace)(nil)
	_ space[uint64]    = (*metricSpace[uint64])(nil)
)
