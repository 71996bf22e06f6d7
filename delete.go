package simdex

import "slices"

// Delete removes the entry for id holding obj. It reports false if no such
// entry exists. Nodes left underfull stay in place; empty nodes are dropped.
func (t *Tree[O]) Delete(id DBID, obj O) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	if err := t.space.validate(obj); err != nil {
		return false, err
	}
	if !t.ids.Contains(uint32(id)) {
		return false, nil
	}
	ok, err := t.deleteObject(id, obj)
	return ok, t.fail("delete", err)
}

// DeleteByID removes id, resolving its object through the relation bound by
// Index.
func (t *Tree[O]) DeleteByID(id DBID) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	if t.rel == nil {
		return false, errorf("no relation bound, use Delete")
	}
	obj, ok := t.rel.Get(id)
	if !ok {
		return false, nil
	}
	return t.Delete(id, obj)
}

func (t *Tree[O]) deleteObject(id DBID, obj O) (bool, error) {
	path, idx, err := t.find(id, obj)
	if err != nil || path == nil {
		return false, err
	}

	leaf := path[len(path)-1].node
	leaf.entries = slices.Delete(leaf.entries, idx, idx+1)
	if err := t.condense(path); err != nil {
		return false, err
	}
	t.ids.Remove(uint32(id))
	t.count--

	if t.kMax > 0 {
		affected, err := t.collectAffected([]O{obj})
		if err != nil {
			return true, err
		}
		if err := t.refreshKNN(affected); err != nil {
			return true, err
		}
	}
	return true, nil
}

// find locates the leaf entry of id, descending only into entries whose
// region contains obj. It returns a nil path if there is none.
func (t *Tree[O]) find(id DBID, obj O) ([]step[O], int, error) {
	root, err := t.readNode(t.root)
	if err != nil {
		return nil, 0, err
	}
	return t.findIn(make([]step[O], 1, t.height), root, id, obj)
}

func (t *Tree[O]) findIn(path []step[O], n *node[O], id DBID, obj O) ([]step[O], int, error) {
	last := len(path) - 1
	path[last].node = n
	if n.leaf {
		for i := range n.entries {
			e := &n.entries[i]
			if e.ref == uint64(id) && t.space.distance(e.obj, obj) == 0 {
				return path, i, nil
			}
		}
		return nil, 0, nil
	}

	for i := range n.entries {
		e := &n.entries[i]
		if !t.space.contains(e, obj) {
			continue
		}
		c, err := t.child(e)
		if err != nil {
			return nil, 0, err
		}
		path[last].index = i
		found, idx, err := t.findIn(append(path[:last+1], step[O]{}), c, id, obj)
		if err != nil || found != nil {
			return found, idx, err
		}
	}
	return nil, 0, nil
}

// condense writes the path bottom-up after a removal. Empty nodes below the
// root are unlinked and freed; an emptied root becomes an empty leaf.
func (t *Tree[O]) condense(path []step[O]) error {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i].node
		if len(n.entries) == 0 {
			if i > 0 {
				if err := t.unlink(path, i); err != nil {
					return err
				}
				continue
			}
			n.leaf = true
			n.blocks = 1
			t.height = 1
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
