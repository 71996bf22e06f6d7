package simdex

import (
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// step is one node on a root-to-node path. index is the entry followed to
// the next step.
type step[O any] struct {
	node  *node[O]
	index int
}

// parentEntry returns the directory entry pointing at path[i].
func parentEntry[O any](path []step[O], i int) *entry[O] {
	p := &path[i-1]
	return &p.node.entries[p.index]
}

// Insert adds obj under id. With k_max > 0 the kNN bounds of the new entry
// and of every entry whose neighborhood it enters are refreshed.
func (t *Tree[O]) Insert(id DBID, obj O) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.space.validate(obj); err != nil {
		return err
	}
	if t.ids.Contains(uint32(id)) {
		return errorf("id %d is already indexed", id)
	}
	return t.fail("insert", t.insertBatch([]DBID{id}, []O{obj}))
}

// insertBatch inserts objects whose ids are known to be new. kNN bounds are
// maintained once for the whole batch.
func (t *Tree[O]) insertBatch(ids []DBID, objs []O) error {
	var affected []point[O]
	if t.kMax > 0 {
		var err error
		if affected, err = t.collectAffected(objs); err != nil {
			return err
		}
	}

	for i, id := range ids {
		if err := t.insertObject(id, objs[i]); err != nil {
			return err
		}
	}

	if t.kMax == 0 {
		return nil
	}
	for i, id := range ids {
		affected = append(affected, point[O]{ref: uint64(id), obj: objs[i]})
	}
	return t.refreshKNN(affected)
}

func (t *Tree[O]) insertObject(id DBID, obj O) error {
	e := entry[O]{ref: uint64(id), obj: obj}
	if t.kMax > 0 {
		e.knn = math.Inf(1)
	}
	t.reinserted = bitset.New(uint(t.height))
	if err := t.insertEntry(e, 0); err != nil {
		return err
	}
	t.ids.Add(uint32(id))
	t.count++
	return nil
}

// insertEntry places e into a node on level (leaves are level 0) and
// repairs the path up to the root.
func (t *Tree[O]) insertEntry(e entry[O], level int) error {
	path, err := t.descend(&e, level)
	if err != nil {
		return err
	}
	last := len(path) - 1
	if last > 0 {
		e.parentDist = t.space.parentDist(e.obj, parentEntry(path, last).obj)
	} else {
		e.parentDist = 0
	}
	n := path[last].node
	n.entries = append(n.entries, e)
	return t.adjust(path)
}

// descend follows chooseSubtree from the root down to level.
func (t *Tree[O]) descend(e *entry[O], level int) ([]step[O], error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	path := make([]step[O], 1, t.height)
	path[0].node = n
	for depth := t.height - 1; depth > level; depth-- {
		cur := n
		childLen := func(i int) (int, error) {
			c, err := t.child(&cur.entries[i])
			if err != nil {
				return 0, err
			}
			return len(c.entries), nil
		}
		i, err := t.space.chooseSubtree(cur, e, level == 0, childLen)
		if err != nil {
			return nil, err
		}
		path[len(path)-1].index = i
		if n, err = t.child(&cur.entries[i]); err != nil {
			return nil, err
		}
		path = append(path, step[O]{node: n})
	}
	return path, nil
}

// adjust writes the path bottom-up, resolving overflows on the way and
// recomputing every covering entry.
func (t *Tree[O]) adjust(path []step[O]) error {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i].node
		if len(n.entries) > t.capacity(n) {
			if t.canReinsert(i) {
				return t.reinsert(path[:i+1])
			}
			if err := t.splitNode(path[:i+1]); err != nil {
				return err
			}
		}
		if err := t.writeNode(n); err != nil {
			return err
		}
		if i > 0 {
			t.space.cover(parentEntry(path, i), n)
		}
	}
	return nil
}

// rewrite writes every node of path bottom-up after entries were removed.
func (t *Tree[O]) rewrite(path []step[O]) error {
	for i := len(path) - 1; i >= 0; i-- {
		if err := t.writeNode(path[i].node); err != nil {
			return err
		}
		if i > 0 {
			t.space.cover(parentEntry(path, i), path[i].node)
		}
	}
	return nil
}

// canReinsert reports whether the overflowing node at depth i may shed
// entries instead of splitting: not the root, and at most once per level
// and top-level insertion.
func (t *Tree[O]) canReinsert(i int) bool {
	if i == 0 || !t.variant.spatial() || t.opts.reinsertFraction <= 0 || t.reinserted == nil {
		return false
	}
	return !t.reinserted.Test(uint(t.height - 1 - i))
}

// reinsert removes the entries farthest from the center of the last node of
// path and inserts them again, closest first, on the same level.
func (t *Tree[O]) reinsert(path []step[O]) error {
	i := len(path) - 1
	n := path[i].node
	level := t.height - 1 - i
	t.reinserted.Set(uint(level))
	t.stats.reinserts.Add(1)

	order := t.space.reinsertOrder(n)
	p := int(math.Round(t.opts.reinsertFraction * float64(len(order))))
	p = min(max(p, 1), len(order)-1)

	drop := make([]bool, len(n.entries))
	out := make([]entry[O], 0, p)
	for j := p - 1; j >= 0; j-- {
		drop[order[j]] = true
		out = append(out, n.entries[order[j]])
	}
	kept := make([]entry[O], 0, len(n.entries)-p)
	for j := range n.entries {
		if !drop[j] {
			kept = append(kept, n.entries[j])
		}
	}
	n.entries = kept

	if err := t.rewrite(path); err != nil {
		return err
	}
	for _, e := range out {
		if err := t.insertEntry(e, level); err != nil {
			return err
		}
	}
	return nil
}

// splitNode divides the overflowing last node of path. The node keeps its
// page and the first group; the second group moves to a new sibling. The
// parent gains an entry for the sibling and a split root grows the tree.
// An X-tree directory node may instead grow into a supernode. The caller
// writes the node itself.
func (t *Tree[O]) splitNode(path []step[O]) error {
	i := len(path) - 1
	n := path[i].node

	res := t.space.split(n, &t.split)
	if res.supernode {
		n.blocks++
		t.stats.supernodes.Add(1)
		return nil
	}
	t.stats.splits.Add(1)

	sib, err := t.newNode(n.leaf)
	if err != nil {
		return err
	}
	n.entries = res.groups[0]
	sib.entries = res.groups[1]
	n.blocks = t.blocksFor(n)
	sib.blocks = t.blocksFor(sib)
	if err := t.writeNode(sib); err != nil {
		return err
	}

	e0 := entry[O]{ref: uint64(n.id), obj: res.routing[0]}
	e1 := entry[O]{ref: uint64(sib.id), obj: res.routing[1]}
	t.space.cover(&e0, n)
	t.space.cover(&e1, sib)

	if i == 0 {
		return t.growRoot(e0, e1)
	}
	if i > 1 {
		routing := parentEntry(path, i-1).obj
		e0.parentDist = t.space.parentDist(e0.obj, routing)
		e1.parentDist = t.space.parentDist(e1.obj, routing)
	}
	parent := &path[i-1]
	parent.node.entries[parent.index] = e0
	parent.node.entries = append(parent.node.entries, e1)
	return nil
}

// growRoot puts a new directory root above the two halves of the old root.
func (t *Tree[O]) growRoot(entries ...entry[O]) error {
	root, err := t.newNode(false)
	if err != nil {
		return err
	}
	root.entries = slices.Clone(entries)
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.root = root.id
	t.height++
	return nil
}

// unlink removes the entry of path[i-1] that points at path[i] and frees the
// child's pages.
func (t *Tree[O]) unlink(path []step[O], i int) error {
	p := &path[i-1]
	p.node.entries = slices.Delete(p.node.entries, p.index, p.index+1)
	return t.freeNode(path[i].node.id)
}
