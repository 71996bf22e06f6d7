package simdex

import (
	"cmp"
	"math"
	"slices"

	"simdex/internal/queue"
)

// point is a leaf entry addressed by its object.
type point[O any] struct {
	ref uint64
	obj O
}

// ReverseKNNQuery returns every indexed object p that has q among its k
// nearest neighbors, that is d(p, q) <= kdist_k(p). kdist_k(p) counts p
// itself and is infinite while the tree holds fewer than k objects.
func (t *Tree[O]) ReverseKNNQuery(q O, k int) ([]Neighbor, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if t.kMax == 0 {
		return nil, unsupportedf("%s keeps no kNN bounds", t.variant)
	}
	if k < 1 || k > t.kMax {
		return nil, errorf("k must be in [1, %d], got %d", t.kMax, k)
	}
	if err := t.space.validate(q); err != nil {
		return nil, err
	}
	t.stats.rknnQueries.Add(1)

	cands, dists, err := t.rknnCandidates(q)
	if err != nil {
		return nil, translate("reverse knn query", err)
	}

	out := make([]Neighbor, 0, len(cands))
	if k == t.kMax {
		for i, c := range cands {
			out = append(out, Neighbor{ID: DBID(c.ref), Dist: dists[i]})
		}
		sortNeighbors(out)
		return out, nil
	}

	objs := make([]O, len(cands))
	for i, c := range cands {
		objs[i] = c.obj
	}
	heaps, err := t.batchNN(objs, k)
	if err != nil {
		return nil, translate("reverse knn query", err)
	}
	for i, c := range cands {
		if dists[i] <= heaps[i].Bound() {
			out = append(out, Neighbor{ID: DBID(c.ref), Dist: dists[i]})
		}
	}
	sortNeighbors(out)
	return out, nil
}

// rknnCandidates collects the leaf entries whose k_max-NN bound admits q.
func (t *Tree[O]) rknnCandidates(q O) ([]point[O], []float64, error) {
	var cands []point[O]
	var dists []float64
	stack := []pending{{id: t.root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := t.readNode(p.id)
		if err != nil {
			return nil, nil, err
		}
		for i := range n.entries {
			e := &n.entries[i]
			if p.routed && t.space.skip(p.dq, e, e.knn) {
				continue
			}
			lb, d := t.space.bounds(q, e, n.leaf)
			if lb > e.knn {
				continue
			}
			if n.leaf {
				cands = append(cands, point[O]{ref: e.ref, obj: e.obj})
				dists = append(dists, d)
			} else {
				stack = append(stack, pending{id: pageOf(e), dq: d, routed: true})
			}
		}
	}
	return cands, dists, nil
}

// batchNN answers k nearest neighbor queries for every object of qs in one
// top-down pass. The result heaps are in the order of qs.
func (t *Tree[O]) batchNN(qs []O, k int) ([]*queue.KNNHeap, error) {
	heaps := make([]*queue.KNNHeap, len(qs))
	for i := range heaps {
		heaps[i] = queue.NewKNNHeap(k)
	}
	if len(qs) == 0 {
		return heaps, nil
	}
	t.stats.batchNN.Add(uint64(len(qs)))

	root, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	active := make([]int, len(qs))
	for i := range active {
		active[i] = i
	}
	if err := t.batchVisit(root, qs, heaps, active, nil); err != nil {
		return nil, err
	}
	return heaps, nil
}

// batchVisit processes node n for the queries in active. dq holds each
// active query's distance to n's routing object, nil at the root.
func (t *Tree[O]) batchVisit(n *node[O], qs []O, heaps []*queue.KNNHeap, active []int, dq []float64) error {
	if n.leaf {
		for i := range n.entries {
			e := &n.entries[i]
			for j, qi := range active {
				if dq != nil && t.space.skip(dq[j], e, heaps[qi].Bound()) {
					continue
				}
				heaps[qi].Offer(e.ref, t.space.distance(qs[qi], e.obj))
			}
		}
		return nil
	}

	type visit struct {
		entry int
		best  float64
		qs    []int
		lb    []float64
		d     []float64
	}
	visits := make([]visit, 0, len(n.entries))
	for i := range n.entries {
		e := &n.entries[i]
		v := visit{entry: i, best: math.Inf(1)}
		for j, qi := range active {
			bound := heaps[qi].Bound()
			if dq != nil && t.space.skip(dq[j], e, bound) {
				continue
			}
			lb, d := t.space.bounds(qs[qi], e, false)
			if lb > bound {
				continue
			}
			v.qs = append(v.qs, qi)
			v.lb = append(v.lb, lb)
			v.d = append(v.d, d)
			v.best = min(v.best, lb)
		}
		if len(v.qs) > 0 {
			visits = append(visits, v)
		}
	}
	slices.SortStableFunc(visits, func(a, b visit) int {
		return cmp.Compare(a.best, b.best)
	})

	for _, v := range visits {
		// Bounds tightened while earlier children were visited.
		sub := v.qs[:0:0]
		var subD []float64
		for j, qi := range v.qs {
			if v.lb[j] <= heaps[qi].Bound() {
				sub = append(sub, qi)
				subD = append(subD, v.d[j])
			}
		}
		if len(sub) == 0 {
			continue
		}
		c, err := t.child(&n.entries[v.entry])
		if err != nil {
			return err
		}
		if err := t.batchVisit(c, qs, heaps, sub, subD); err != nil {
			return err
		}
	}
	return nil
}

// collectAffected returns the leaf entries that have one of objs within
// their k_max-NN bound, i.e. whose neighborhood changes when objs are added
// or removed.
func (t *Tree[O]) collectAffected(objs []O) ([]point[O], error) {
	if len(objs) == 0 || t.count == 0 {
		return nil, nil
	}
	root, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	active := make([]int, len(objs))
	for i := range active {
		active[i] = i
	}
	var out []point[O]
	err = t.affectedVisit(root, objs, active, nil, &out)
	return out, err
}

func (t *Tree[O]) affectedVisit(n *node[O], objs []O, active []int, dq []float64, out *[]point[O]) error {
	if n.leaf {
		for i := range n.entries {
			e := &n.entries[i]
			for j, qi := range active {
				if dq != nil && t.space.skip(dq[j], e, e.knn) {
					continue
				}
				if t.space.distance(objs[qi], e.obj) <= e.knn {
					*out = append(*out, point[O]{ref: e.ref, obj: e.obj})
					break
				}
			}
		}
		return nil
	}

	for i := range n.entries {
		e := &n.entries[i]
		var sub []int
		var subD []float64
		for j, qi := range active {
			if dq != nil && t.space.skip(dq[j], e, e.knn) {
				continue
			}
			lb, d := t.space.bounds(objs[qi], e, false)
			if lb <= e.knn {
				sub = append(sub, qi)
				subD = append(subD, d)
			}
		}
		if len(sub) == 0 {
			continue
		}
		c, err := t.child(e)
		if err != nil {
			return err
		}
		if err := t.affectedVisit(c, objs, sub, subD, out); err != nil {
			return err
		}
	}
	return nil
}

// refreshKNN recomputes the k_max-NN distance of every point and stores it
// in the leaves and along the covering entries above them.
func (t *Tree[O]) refreshKNN(points []point[O]) error {
	if len(points) == 0 {
		return nil
	}
	objs := make([]O, len(points))
	for i, p := range points {
		objs[i] = p.obj
	}
	heaps, err := t.batchNN(objs, t.kMax)
	if err != nil {
		return err
	}
	knn := make(map[uint64]float64, len(points))
	for i, p := range points {
		knn[p.ref] = heaps[i].Bound()
	}

	root, err := t.readNode(t.root)
	if err != nil {
		return err
	}
	all := make([]int, len(points))
	for i := range all {
		all[i] = i
	}
	_, _, err = t.applyKNN(root, points, all, knn)
	return err
}

// applyKNN stores the refreshed bounds below n, descending into every entry
// that may contain one of the points. It returns the largest bound in n and
// whether n changed; changed nodes are written.
func (t *Tree[O]) applyKNN(n *node[O], points []point[O], active []int, knn map[uint64]float64) (float64, bool, error) {
	changed := false
	if n.leaf {
		for i := range n.entries {
			e := &n.entries[i]
			if v, ok := knn[e.ref]; ok && v != e.knn {
				e.knn = v
				changed = true
			}
		}
	} else {
		for i := range n.entries {
			e := &n.entries[i]
			var sub []int
			for _, pi := range active {
				if t.space.contains(e, points[pi].obj) {
					sub = append(sub, pi)
				}
			}
			if len(sub) == 0 {
				continue
			}
			c, err := t.child(e)
			if err != nil {
				return 0, false, err
			}
			bound, childChanged, err := t.applyKNN(c, points, sub, knn)
			if err != nil {
				return 0, false, err
			}
			if childChanged && bound != e.knn {
				e.knn = bound
				changed = true
			}
		}
	}

	if changed {
		if err := t.writeNode(n); err != nil {
			return 0, false, err
		}
	}
	return maxKNN(n), changed, nil
}

func maxKNN[O any](n *node[O]) float64 {
	var m float64
	for i := range n.entries {
		m = max(m, n.entries[i].knn)
	}
	return m
}
