package simdex

import (
	"cmp"
	"math"
	"slices"
)

// distribution is a candidate split: the first k entries of order form the
// first group.
type distribution struct {
	order []int
	k     int
}

// sortedOrder sorts entry indices along axis by lower bound, or by upper
// bound when byMax is set. Ties fall back to the index.
func sortedOrder(rects []rect, axis int, byMax bool) []int {
	order := make([]int, len(rects))
	for i := range order {
		order[i] = i
	}
	key := func(i int) float64 {
		if byMax {
			return rects[i].max[axis]
		}
		return rects[i].min[axis]
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(key(a), key(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return order
}

// sweep returns the bounding rects of every prefix and every suffix of order.
func sweep(rects []rect, order []int) (pre, suf []rect) {
	n := len(order)
	pre = make([]rect, n)
	suf = make([]rect, n)
	pre[0] = rects[order[0]].clone()
	for i := 1; i < n; i++ {
		pre[i] = pre[i-1].union(rects[order[i]])
	}
	suf[n-1] = rects[order[n-1]].clone()
	for i := n - 2; i >= 0; i-- {
		suf[i] = suf[i+1].union(rects[order[i]])
	}
	return pre, suf
}

// rstarDistribution picks the split axis with the smallest margin sum, then
// the distribution on that axis with the least overlap volume, then the
// least combined volume.
func rstarDistribution(rects []rect, m int) distribution {
	n := len(rects)
	dim := len(rects[0].min)

	axis, bestMargin := 0, math.Inf(1)
	for a := 0; a < dim; a++ {
		var margin float64
		for _, byMax := range []bool{false, true} {
			pre, suf := sweep(rects, sortedOrder(rects, a, byMax))
			for k := m; k <= n-m; k++ {
				margin += pre[k-1].margin() + suf[k].margin()
			}
		}
		if margin < bestMargin {
			axis, bestMargin = a, margin
		}
	}

	var best distribution
	bestOverlap, bestVolume := math.Inf(1), math.Inf(1)
	for _, byMax := range []bool{false, true} {
		order := sortedOrder(rects, axis, byMax)
		pre, suf := sweep(rects, order)
		for k := m; k <= n-m; k++ {
			ov := pre[k-1].overlap(suf[k])
			vol := pre[k-1].volume() + suf[k].volume()
			if ov < bestOverlap || (ov == bestOverlap && vol < bestVolume) {
				best = distribution{order: order, k: k}
				bestOverlap, bestVolume = ov, vol
			}
		}
	}
	return best
}

// hyperplane assigns every entry to the closer of two promoted entries. d0
// and d1 hold the distances to the promoted entries; equal distances go to
// the smaller group. The promoted entries always land in their own group.
// radii are the resulting covering radii.
func hyperplane[O any](entries []entry[O], p0, p1 int, d0, d1 []float64) (assign []int8, radii [2]float64) {
	assign = make([]int8, len(entries))
	var count [2]int
	for i := range entries {
		var g int8
		switch {
		case i == p0:
			g = 0
		case i == p1:
			g = 1
		case d0[i] < d1[i]:
			g = 0
		case d1[i] < d0[i]:
			g = 1
		case count[1] < count[0]:
			g = 1
		}
		assign[i] = g
		count[g]++
		d := d0[i]
		if g == 1 {
			d = d1[i]
		}
		radii[g] = max(radii[g], d+entries[i].radius)
	}
	return assign, radii
}

func (s *metricSpace[O]) partition(entries []entry[O], p0, p1 int, d0, d1 []float64) splitResult[O] {
	assign, _ := hyperplane(entries, p0, p1, d0, d1)
	res := splitResult[O]{routing: [2]O{entries[p0].obj, entries[p1].obj}}
	for i, g := range assign {
		e := entries[i]
		e.parentDist = d0[i]
		if g == 1 {
			e.parentDist = d1[i]
		}
		res.groups[g] = append(res.groups[g], e)
	}
	return res
}

// minMaxRadiusSplit tries every pair of promoted entries and keeps the pair
// whose larger covering radius is smallest.
func (s *metricSpace[O]) minMaxRadiusSplit(entries []entry[O]) splitResult[O] {
	n := len(entries)
	dm := make([][]float64, n)
	for i := range dm {
		dm[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := s.distance(entries[i].obj, entries[j].obj)
			dm[i][j], dm[j][i] = d, d
		}
	}

	b0, b1, best := 0, 1, math.Inf(1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			_, radii := hyperplane(entries, i, j, dm[i], dm[j])
			if c := max(radii[0], radii[1]); c < best {
				b0, b1, best = i, j, c
			}
		}
	}
	return s.partition(entries, b0, b1, dm[b0], dm[b1])
}

// maxLowerBoundSplit promotes the entry closest to the old routing object and
// the entry farthest from that one.
func (s *metricSpace[O]) maxLowerBoundSplit(entries []entry[O]) splitResult[O] {
	n := len(entries)
	p0 := 0
	for i := 1; i < n; i++ {
		if entries[i].parentDist < entries[p0].parentDist {
			p0 = i
		}
	}

	d0 := make([]float64, n)
	p1, far := -1, -1.0
	for i := range entries {
		if i == p0 {
			continue
		}
		d0[i] = s.distance(entries[i].obj, entries[p0].obj)
		if d0[i] > far {
			p1, far = i, d0[i]
		}
	}

	d1 := make([]float64, n)
	for i := range entries {
		if i != p1 {
			d1[i] = s.distance(entries[i].obj, entries[p1].obj)
		}
	}
	return s.partition(entries, p0, p1, d0, d1)
}
