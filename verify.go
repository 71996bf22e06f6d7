package simdex

import "fmt"

// Verify walks the whole tree and checks its structural invariants: every
// directory entry covers its subtree, kNN bounds of directory entries are at
// least the bounds below them, no node exceeds its capacity, all leaves sit
// on the same level and the leaves hold exactly Len() entries. A violation
// is reported as ErrCorruption.
func (t *Tree[O]) Verify() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	root, err := t.readNode(t.root)
	if err != nil {
		return translate("verify", err)
	}
	var leaves uint64
	if err := t.verifyNode(root, 0, &leaves); err != nil {
		return translate("verify", err)
	}
	if leaves != t.count {
		return fmt.Errorf("verify: %w: leaves hold %d entries, tree counts %d", ErrCorruption, leaves, t.count)
	}
	if n := t.ids.GetCardinality(); n != t.count {
		return fmt.Errorf("verify: %w: id set holds %d ids, tree counts %d", ErrCorruption, n, t.count)
	}
	return nil
}

func (t *Tree[O]) verifyNode(n *node[O], depth int, leaves *uint64) error {
	if len(n.entries) > t.capacity(n) {
		return fmt.Errorf("%w: page %d holds %d entries, capacity %d", ErrCorruption, n.id, len(n.entries), t.capacity(n))
	}
	if n.leaf {
		if depth != t.height-1 {
			return fmt.Errorf("%w: leaf %d at depth %d, height %d", ErrCorruption, n.id, depth, t.height)
		}
		if n.blocks != 1 {
			return fmt.Errorf("%w: leaf %d spans %d blocks", ErrCorruption, n.id, n.blocks)
		}
		*leaves += uint64(len(n.entries))
		return nil
	}

	if depth >= t.height-1 {
		return fmt.Errorf("%w: directory %d at depth %d, height %d", ErrCorruption, n.id, depth, t.height)
	}
	if len(n.entries) == 0 {
		return fmt.Errorf("%w: empty directory %d", ErrCorruption, n.id)
	}
	for i := range n.entries {
		e := &n.entries[i]
		c, err := t.child(e)
		if err != nil {
			return err
		}
		if len(c.entries) == 0 {
			return fmt.Errorf("%w: empty node %d below directory %d", ErrCorruption, c.id, n.id)
		}
		if err := t.space.checkCover(e, c); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruption, err)
		}
		if t.kMax > 0 {
			if m := maxKNN(c); m > e.knn {
				return fmt.Errorf("%w: entry %d of page %d bounds kNN distance %v below %v",
					ErrCorruption, i, n.id, e.knn, m)
			}
		}
		if err := t.verifyNode(c, depth+1, leaves); err != nil {
			return err
		}
	}
	return nil
}
