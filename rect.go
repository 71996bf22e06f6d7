package simdex

import "slices"

// pointRect is the degenerate rectangle of a point. It aliases p, so rects
// are treated as immutable everywhere.
func pointRect(p []float64) rect {
	return rect{min: p, max: p}
}

func (r rect) clone() rect {
	return rect{min: slices.Clone(r.min), max: slices.Clone(r.max)}
}

func (r rect) union(o rect) rect {
	u := rect{min: make([]float64, len(r.min)), max: make([]float64, len(r.max))}
	for i := range r.min {
		u.min[i] = min(r.min[i], o.min[i])
		u.max[i] = max(r.max[i], o.max[i])
	}
	return u
}

// extend grows r in place to cover o. r must own its slices.
func (r rect) extend(o rect) {
	for i := range r.min {
		r.min[i] = min(r.min[i], o.min[i])
		r.max[i] = max(r.max[i], o.max[i])
	}
}

func (r rect) volume() float64 {
	v := 1.0
	for i := range r.min {
		v *= r.max[i] - r.min[i]
	}
	return v
}

func (r rect) margin() float64 {
	var m float64
	for i := range r.min {
		m += r.max[i] - r.min[i]
	}
	return m
}

// overlap returns the volume of the intersection of r and o.
func (r rect) overlap(o rect) float64 {
	v := 1.0
	for i := range r.min {
		lo := max(r.min[i], o.min[i])
		hi := min(r.max[i], o.max[i])
		if hi <= lo {
			return 0
		}
		v *= hi - lo
	}
	return v
}

// intersection returns the common region and whether it is non-empty.
// Touching boundaries count as intersecting.
func (r rect) intersection(o rect) (rect, bool) {
	x := rect{min: make([]float64, len(r.min)), max: make([]float64, len(r.max))}
	for i := range r.min {
		x.min[i] = max(r.min[i], o.min[i])
		x.max[i] = min(r.max[i], o.max[i])
		if x.max[i] < x.min[i] {
			return rect{}, false
		}
	}
	return x, true
}

func (r rect) intersects(o rect) bool {
	for i := range r.min {
		if r.max[i] < o.min[i] || o.max[i] < r.min[i] {
			return false
		}
	}
	return true
}

func (r rect) containsRect(o rect) bool {
	for i := range r.min {
		if o.min[i] < r.min[i] || o.max[i] > r.max[i] {
			return false
		}
	}
	return true
}

func (r rect) containsPoint(p []float64) bool {
	for i := range r.min {
		if p[i] < r.min[i] || p[i] > r.max[i] {
			return false
		}
	}
	return true
}

func (r rect) center(dim int) float64 {
	return (r.min[dim] + r.max[dim]) / 2
}

// enlargement is the volume growth needed for r to cover o.
func (r rect) enlargement(o rect) float64 {
	v := 1.0
	for i := range r.min {
		v *= max(r.max[i], o.max[i]) - min(r.min[i], o.min[i])
	}
	return v - r.volume()
}

func (r rect) equal(o rect) bool {
	return slices.Equal(r.min, o.min) && slices.Equal(r.max, o.max)
}

// boundingRect covers every rect in rs. rs must not be empty.
func boundingRect(rs []rect) rect {
	b := rs[0].clone()
	for _, r := range rs[1:] {
		b.extend(r)
	}
	return b
}
