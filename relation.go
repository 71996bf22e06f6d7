package simdex

import "slices"

// DBID identifies an indexed object. Ids are assigned by the caller and must
// be unique within a tree.
type DBID uint32

// Neighbor is a query result.
type Neighbor struct {
	ID   DBID
	Dist float64
}

// Relation supplies objects by id. Index binds a relation to a tree so that
// DeleteByID can resolve objects.
type Relation[O any] interface {
	IDs() []DBID
	Get(id DBID) (O, bool)
}

// MapRelation is a Relation backed by a map.
type MapRelation[O any] map[DBID]O

// IDs returns the ids in ascending order.
func (m MapRelation[O]) IDs() []DBID {
	ids := make([]DBID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m MapRelation[O]) Get(id DBID) (O, bool) {
	o, ok := m[id]
	return o, ok
}

func sortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, func(a, b Neighbor) int {
		switch {
		case a.Dist < b.Dist:
			return -1
		case a.Dist > b.Dist:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
