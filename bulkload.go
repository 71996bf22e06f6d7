package simdex

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

var errNoPacking = errors.New("geometry has no packing order")

// InsertAll inserts a batch of objects. kNN bounds are maintained once for
// the whole batch. An empty spatial tree opened WithBulkLoad(BulkLoadSTR) is
// packed bottom-up instead.
//
// The batch is validated up front; a failure in the middle of the insertion
// leaves the objects inserted so far in the tree.
func (t *Tree[O]) InsertAll(ids []DBID, objs []O) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if len(ids) != len(objs) {
		return errorf("%d ids for %d objects", len(ids), len(objs))
	}
	seen := roaring.New()
	for i, id := range ids {
		if t.ids.Contains(uint32(id)) || !seen.CheckedAdd(uint32(id)) {
			return errorf("id %d is already indexed", id)
		}
		if err := t.space.validate(objs[i]); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if t.opts.bulkLoad == BulkLoadSTR && t.count == 0 {
		if err := t.packAll(ids, objs); err != errNoPacking {
			return t.fail("bulk load", err)
		}
	}
	return t.fail("insert", t.insertBatch(ids, objs))
}

// Index binds rel to the tree and inserts all of its objects. DeleteByID
// resolves objects through the bound relation afterwards.
func (t *Tree[O]) Index(rel Relation[O]) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if rel == nil {
		return errorf("nil relation")
	}
	ids := rel.IDs()
	objs := make([]O, len(ids))
	for i, id := range ids {
		o, ok := rel.Get(id)
		if !ok {
			return errorf("relation lists id %d but cannot resolve it", id)
		}
		objs[i] = o
	}
	if err := t.InsertAll(ids, objs); err != nil {
		return err
	}
	t.rel = rel
	return nil
}

// packAll replaces the empty root with a tree built bottom-up from the
// geometry's packing order, then computes every kNN bound in one pass.
func (t *Tree[O]) packAll(ids []DBID, objs []O) error {
	level := make([]entry[O], len(ids))
	for i, id := range ids {
		level[i] = entry[O]{ref: uint64(id), obj: objs[i]}
	}
	groups := t.space.pack(level, t.split.leafCap, true)
	if groups == nil {
		return errNoPacking
	}

	oldRoot := t.root
	height := 1
	leaf := true
	for {
		parents := make([]entry[O], 0, len(groups))
		for _, g := range groups {
			n, err := t.newNode(leaf)
			if err != nil {
				return err
			}
			n.entries = g
			if err := t.writeNode(n); err != nil {
				return err
			}
			pe := entry[O]{ref: uint64(n.id)}
			t.space.cover(&pe, n)
			parents = append(parents, pe)
		}
		if len(parents) == 1 {
			t.root = pageOf(&parents[0])
			break
		}
		leaf = false
		height++
		groups = t.space.pack(parents, t.split.dirCap, false)
	}

	if err := t.freeNode(oldRoot); err != nil {
		return err
	}
	t.height = height
	for _, id := range ids {
		t.ids.Add(uint32(id))
	}
	t.count += uint64(len(ids))

	if t.kMax == 0 {
		return nil
	}
	points := make([]point[O], len(ids))
	for i := range ids {
		points[i] = point[O]{ref: uint64(ids[i]), obj: objs[i]}
	}
	return t.refreshKNN(points)
}

// pack tiles entries with sort-tile-recursive partitioning: sorted into
// slabs by the center along the first axis, each slab recursively along the
// next, and the last axis cut into runs of capacity entries.
func (s *spatialSpace) pack(entries []entry[[]float64], capacity int, leaf bool) [][]entry[[]float64] {
	centers := make([][]float64, len(entries))
	for i := range entries {
		r := entryRect(&entries[i], leaf)
		c := make([]float64, s.dim)
		for d := range c {
			c[d] = r.center(d)
		}
		centers[i] = c
	}
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}

	var out [][]entry[[]float64]
	var tile func(idx []int, axis int)
	tile = func(idx []int, axis int) {
		slices.SortStableFunc(idx, func(a, b int) int {
			return cmp.Compare(centers[a][axis], centers[b][axis])
		})
		if axis == s.dim-1 {
			for lo := 0; lo < len(idx); lo += capacity {
				hi := min(lo+capacity, len(idx))
				g := make([]entry[[]float64], 0, hi-lo)
				for _, i := range idx[lo:hi] {
					g = append(g, entries[i])
				}
				out = append(out, g)
			}
			return
		}
		pages := (len(idx) + capacity - 1) / capacity
		slabs := int(math.Ceil(math.Pow(float64(pages), 1/float64(s.dim-axis))))
		size := capacity * ((pages + slabs - 1) / slabs)
		for lo := 0; lo < len(idx); lo += size {
			tile(idx[lo:min(lo+size, len(idx))], axis+1)
		}
	}
	tile(order, 0)
	return out
}
