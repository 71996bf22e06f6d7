package simdex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"simdex/internal/base"
)

var errMalformedNode = errors.New("malformed node payload")

// rect is an axis-aligned bounding box.
type rect struct {
	min, max []float64
}

// entry is one slot of a node. Leaf entries hold a DBID in ref and the
// object in obj. Directory entries hold the child page id in ref and either
// a routing object with covering radius (metric) or an MBR (spatial).
type entry[O any] struct {
	ref        uint64
	obj        O
	rect       rect
	radius     float64
	parentDist float64
	knn        float64
}

// node is the decoded form of a node page chain. Parent links are not
// stored; operations carry the path they descended.
type node[O any] struct {
	id      base.PageID
	leaf    bool
	blocks  int // supernode size in pages, 1 for ordinary nodes
	entries []entry[O]
}

// NODE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Header (8 bytes): flags u8, blocks u8, count u16, reserved u32      │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Leaf entry:      ref u64, parentDist f64, [knn f64], object         │
// │ Directory entry: ref u64, parentDist f64, [knn f64],                │
// │                  radius f64 + routing object   (metric)             │
// │                  min[dim] f64 + max[dim] f64   (spatial)            │
// └─────────────────────────────────────────────────────────────────────┘
const (
	nodeHeaderSize = 8
	flagLeaf       = 1
)

// layout fixes the entry widths for a tree.
type layout[O any] struct {
	codec     Codec[O]
	spatial   bool
	dim       int
	knn       bool
	leafWidth int
	dirWidth  int
}

func newLayout[O any](codec Codec[O], spatial bool, dim int, knn bool) layout[O] {
	l := layout[O]{codec: codec, spatial: spatial, dim: dim, knn: knn}
	fixed := 16
	if knn {
		fixed += 8
	}
	l.leafWidth = fixed + codec.Size()
	if spatial {
		l.dirWidth = fixed + 16*dim
	} else {
		l.dirWidth = fixed + 8 + codec.Size()
	}
	return l
}

// capacity is the number of entries a single page holds.
func (l *layout[O]) capacity(pageSize int, leaf bool) int {
	w := l.dirWidth
	if leaf {
		w = l.leafWidth
	}
	return (pageSize - base.PageHeaderSize - nodeHeaderSize) / w
}

func (l *layout[O]) width(leaf bool) int {
	if leaf {
		return l.leafWidth
	}
	return l.dirWidth
}

func (l *layout[O]) encode(n *node[O]) []byte {
	w := l.width(n.leaf)
	buf := make([]byte, nodeHeaderSize+len(n.entries)*w)
	if n.leaf {
		buf[0] = flagLeaf
	}
	buf[1] = uint8(n.blocks)
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(n.entries)))

	le := binary.LittleEndian
	off := nodeHeaderSize
	for i := range n.entries {
		e := &n.entries[i]
		p := buf[off : off+w]
		le.PutUint64(p[0:], e.ref)
		le.PutUint64(p[8:], math.Float64bits(e.parentDist))
		p = p[16:]
		if l.knn {
			le.PutUint64(p, math.Float64bits(e.knn))
			p = p[8:]
		}
		switch {
		case n.leaf:
			l.codec.Encode(p, e.obj)
		case l.spatial:
			for d := 0; d < l.dim; d++ {
				le.PutUint64(p[8*d:], math.Float64bits(e.rect.min[d]))
				le.PutUint64(p[8*(l.dim+d):], math.Float64bits(e.rect.max[d]))
			}
		default:
			le.PutUint64(p, math.Float64bits(e.radius))
			l.codec.Encode(p[8:], e.obj)
		}
		off += w
	}
	return buf
}

func (l *layout[O]) decode(id base.PageID, data []byte) (*node[O], error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("%w: page %d holds %d bytes", errMalformedNode, id, len(data))
	}
	n := &node[O]{
		id:     id,
		leaf:   data[0]&flagLeaf != 0,
		blocks: int(data[1]),
	}
	count := int(binary.LittleEndian.Uint16(data[2:]))
	w := l.width(n.leaf)
	if n.blocks < 1 || nodeHeaderSize+count*w != len(data) {
		return nil, fmt.Errorf("%w: page %d has %d entries in %d bytes", errMalformedNode, id, count, len(data))
	}

	le := binary.LittleEndian
	n.entries = make([]entry[O], count)
	off := nodeHeaderSize
	for i := range n.entries {
		e := &n.entries[i]
		p := data[off : off+w]
		e.ref = le.Uint64(p[0:])
		e.parentDist = math.Float64frombits(le.Uint64(p[8:]))
		p = p[16:]
		if l.knn {
			e.knn = math.Float64frombits(le.Uint64(p))
			p = p[8:]
		}
		switch {
		case n.leaf:
			e.obj = l.codec.Decode(p)
		case l.spatial:
			e.rect = rect{min: make([]float64, l.dim), max: make([]float64, l.dim)}
			for d := 0; d < l.dim; d++ {
				e.rect.min[d] = math.Float64frombits(le.Uint64(p[8*d:]))
				e.rect.max[d] = math.Float64frombits(le.Uint64(p[8*(l.dim+d):]))
			}
		default:
			e.radius = math.Float64frombits(le.Uint64(p))
			e.obj = l.codec.Decode(p[8:])
		}
		off += w
	}
	return n, nil
}
