package simdex

import (
	"math"

	"simdex/internal/base"
	"simdex/internal/queue"
)

// pending is a node waiting in a best-first traversal. dq is the distance
// from the query to the node's routing object, valid when routed is set.
type pending struct {
	id     base.PageID
	dq     float64
	routed bool
}

// RangeQuery returns every object within radius r of q, sorted by distance
// and then id. No match yields an empty, non-nil slice, as for every query.
func (t *Tree[O]) RangeQuery(q O, r float64) ([]Neighbor, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if r < 0 || math.IsNaN(r) {
		return nil, errorf("range radius must be a non-negative number, got %v", r)
	}
	if err := t.space.validate(q); err != nil {
		return nil, err
	}
	t.stats.rangeQueries.Add(1)

	out := []Neighbor{}
	stack := []pending{{id: t.root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := t.readNode(p.id)
		if err != nil {
			return nil, translate("range query", err)
		}
		for i := range n.entries {
			e := &n.entries[i]
			if p.routed && t.space.skip(p.dq, e, r) {
				continue
			}
			lb, d := t.space.bounds(q, e, n.leaf)
			if lb > r {
				continue
			}
			if n.leaf {
				out = append(out, Neighbor{ID: DBID(e.ref), Dist: d})
			} else {
				stack = append(stack, pending{id: pageOf(e), dq: d, routed: true})
			}
		}
	}
	sortNeighbors(out)
	return out, nil
}

// KNNQuery returns the k objects closest to q, fewer if the tree holds fewer,
// sorted by distance and then id.
func (t *Tree[O]) KNNQuery(q O, k int) ([]Neighbor, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, errorf("k must not be negative, got %d", k)
	}
	if err := t.space.validate(q); err != nil {
		return nil, err
	}
	t.stats.knnQueries.Add(1)
	if k == 0 || t.count == 0 {
		return []Neighbor{}, nil
	}

	h := queue.NewKNNHeap(k)
	if err := t.knn(q, h); err != nil {
		return nil, translate("knn query", err)
	}
	return neighbors(h), nil
}

// knn runs a best-first search for q, collecting into h.
func (t *Tree[O]) knn(q O, h *queue.KNNHeap) error {
	var pq queue.MinQueue[pending]
	pq.Push(pending{id: t.root}, 0)
	for pq.Len() > 0 {
		p, lb, _ := pq.Pop()
		if lb > h.Bound() {
			break
		}
		n, err := t.readNode(p.id)
		if err != nil {
			return err
		}
		for i := range n.entries {
			e := &n.entries[i]
			if p.routed && t.space.skip(p.dq, e, h.Bound()) {
				continue
			}
			lb, d := t.space.bounds(q, e, n.leaf)
			switch {
			case n.leaf:
				h.Offer(e.ref, d)
			case lb <= h.Bound():
				pq.Push(pending{id: pageOf(e), dq: d, routed: true}, lb)
			}
		}
	}
	return nil
}

func neighbors(h *queue.KNNHeap) []Neighbor {
	cands := h.Sorted()
	out := make([]Neighbor, len(cands))
	for i, c := range cands {
		out[i] = Neighbor{ID: DBID(c.ID), Dist: c.Dist}
	}
	return out
}
