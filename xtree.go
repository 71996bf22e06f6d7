package simdex

import "math"

// groupRects returns the bounding rects of the two groups of d.
func groupRects(rects []rect, d distribution) (rect, rect) {
	b0 := rects[d.order[0]].clone()
	for _, idx := range d.order[1:d.k] {
		b0.extend(rects[idx])
	}
	b1 := rects[d.order[d.k]].clone()
	for _, idx := range d.order[d.k+1:] {
		b1.extend(rects[idx])
	}
	return b0, b1
}

// overlapOf measures how much the group regions b0 and b1 overlap.
func overlapOf(rects []rect, b0, b1 rect, metric OverlapMetric) float64 {
	if metric == OverlapVolume {
		sum := b0.volume() + b1.volume()
		if sum == 0 {
			return 0
		}
		return b0.overlap(b1) / sum
	}

	x, ok := b0.intersection(b1)
	if !ok {
		return 0
	}
	var inside int
	for _, r := range rects {
		if r.intersects(x) {
			inside++
		}
	}
	return float64(inside) / float64(len(rects))
}

// minOverlapDistribution searches every axis and both sort orders for the
// distribution with the least overlap, ties by combined volume.
func minOverlapDistribution(rects []rect, m int, metric OverlapMetric) (distribution, float64) {
	n := len(rects)
	var best distribution
	bestOverlap, bestVolume := math.Inf(1), math.Inf(1)
	for a := 0; a < len(rects[0].min); a++ {
		for _, byMax := range []bool{false, true} {
			order := sortedOrder(rects, a, byMax)
			pre, suf := sweep(rects, order)
			for k := m; k <= n-m; k++ {
				ov := overlapOf(rects, pre[k-1], suf[k], metric)
				vol := pre[k-1].volume() + suf[k].volume()
				if ov < bestOverlap || (ov == bestOverlap && vol < bestVolume) {
					best = distribution{order: order, k: k}
					bestOverlap, bestVolume = ov, vol
				}
			}
		}
	}
	return best, bestOverlap
}

// xtreeDistribution splits a directory node unless every distribution
// overlaps too much, in which case it reports that the node should grow into
// a supernode. At the block limit the least overlapping split is forced.
func xtreeDistribution(rects []rect, m, blocks int, cfg *splitConfig) (distribution, bool) {
	d := rstarDistribution(rects, m)
	b0, b1 := groupRects(rects, d)
	if overlapOf(rects, b0, b1, cfg.overlapMetric) <= cfg.maxOverlap {
		return d, false
	}

	d, ov := minOverlapDistribution(rects, m, cfg.overlapMetric)
	if ov <= cfg.maxOverlap {
		return d, false
	}
	if blocks < cfg.maxBlocks {
		return distribution{}, true
	}
	cfg.log.Warn("supernode at block limit, forcing split",
		"blocks", blocks, "entries", len(rects), "overlap", ov)
	return d, false
}
