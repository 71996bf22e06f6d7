package simdex

import (
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simdex/distance"
)

func TestRectOps(t *testing.T) {
	t.Parallel()

	a := rect{min: []float64{0, 0}, max: []float64{2, 3}}
	b := rect{min: []float64{1, 1}, max: []float64{4, 2}}

	assert.Equal(t, 6.0, a.volume())
	assert.Equal(t, 5.0, a.margin())
	assert.Equal(t, 1.0, a.overlap(b))
	assert.True(t, a.intersects(b))

	x, ok := a.intersection(b)
	require.True(t, ok)
	assert.Equal(t, rect{min: []float64{1, 1}, max: []float64{2, 2}}, x)

	u := a.union(b)
	assert.Equal(t, rect{min: []float64{0, 0}, max: []float64{4, 3}}, u)
	assert.Equal(t, []float64{0, 0}, a.min, "union leaves its operands alone")
	assert.Equal(t, 6.0, a.enlargement(b))
	assert.True(t, u.containsRect(a))
	assert.False(t, a.containsRect(b))
	assert.True(t, a.containsPoint([]float64{2, 3}))
	assert.False(t, a.containsPoint([]float64{2.1, 3}))

	touching := rect{min: []float64{2, 3}, max: []float64{5, 5}}
	assert.True(t, a.intersects(touching))
	assert.Zero(t, a.overlap(touching))
	_, ok = a.intersection(rect{min: []float64{3, 0}, max: []float64{4, 1}})
	assert.False(t, ok)

	c := a.clone()
	c.extend(rect{min: []float64{-1, 0}, max: []float64{0, 0}})
	assert.Equal(t, -1.0, c.min[0])
	assert.Equal(t, 0.0, a.min[0])
	assert.True(t, boundingRect([]rect{a, b}).equal(u))
}

func TestRStarDistribution(t *testing.T) {
	t.Parallel()

	pts := [][]float64{{0, 0}, {1, 1}, {2, 0}, {3, 1}, {10, 0}, {11, 1}, {12, 0}, {13, 1}}
	rects := make([]rect, len(pts))
	for i, p := range pts {
		rects[i] = pointRect(p)
	}
	d := rstarDistribution(rects, 2)
	require.Equal(t, 4, d.k)
	first := slices.Clone(d.order[:d.k])
	slices.Sort(first)
	assert.Equal(t, []int{0, 1, 2, 3}, first)

	b0, b1 := groupRects(rects, d)
	assert.Zero(t, b0.overlap(b1))
}

func TestMinOverlapDistribution(t *testing.T) {
	t.Parallel()

	// Two columns: splitting along x separates them, along y it cannot.
	rects := []rect{
		{min: []float64{0, 0}, max: []float64{1, 10}},
		{min: []float64{0, 1}, max: []float64{1, 11}},
		{min: []float64{5, 0}, max: []float64{6, 10}},
		{min: []float64{5, 1}, max: []float64{6, 11}},
	}
	for _, metric := range []OverlapMetric{OverlapVolume, OverlapData} {
		d, ov := minOverlapDistribution(rects, 2, metric)
		assert.Zero(t, ov)
		first := slices.Clone(d.order[:d.k])
		slices.Sort(first)
		assert.Equal(t, []int{0, 1}, first)
	}
}

func TestHyperplane(t *testing.T) {
	t.Parallel()

	entries := make([]entry[int], 4)
	entries[1].radius = 0.5
	d0 := []float64{0, 1, 3, 2}
	d1 := []float64{5, 4, 0, 2}

	assign, radii := hyperplane(entries, 0, 2, d0, d1)
	// The tie at entry 3 goes to the smaller group.
	assert.Equal(t, []int8{0, 0, 1, 1}, assign)
	assert.Equal(t, [2]float64{1.5, 2}, radii)

	// Promoted entries stay in their own group even at distance ties.
	assign, _ = hyperplane(entries[:2], 0, 1, []float64{0, 0}, []float64{0, 0})
	assert.Equal(t, []int8{0, 1}, assign)
}

func lineSpace() *metricSpace[[]float64] {
	return &metricSpace[[]float64]{dist: distance.Euclidean, calls: new(atomic.Uint64)}
}

func lineEntries(xs ...float64) []entry[[]float64] {
	es := make([]entry[[]float64], len(xs))
	for i, x := range xs {
		es[i] = entry[[]float64]{ref: uint64(i + 1), obj: []float64{x}}
	}
	return es
}

func groupRefs(es []entry[[]float64]) []uint64 {
	refs := make([]uint64, len(es))
	for i, e := range es {
		refs[i] = e.ref
	}
	slices.Sort(refs)
	return refs
}

func TestMinMaxRadiusSplit(t *testing.T) {
	t.Parallel()

	s := lineSpace()
	res := s.minMaxRadiusSplit(lineEntries(0, 1, 2, 10, 11, 12))
	assert.Equal(t, [2][]float64{{1}, {11}}, res.routing)
	assert.Equal(t, []uint64{1, 2, 3}, groupRefs(res.groups[0]))
	assert.Equal(t, []uint64{4, 5, 6}, groupRefs(res.groups[1]))
	for g, group := range res.groups {
		for _, e := range group {
			assert.Equal(t, s.dist.Distance(e.obj, res.routing[g]), e.parentDist)
		}
	}
	assert.Equal(t, uint64(15), s.calls.Load(), "one pairwise matrix serves every candidate pair")
}

func TestMaxLowerBoundSplit(t *testing.T) {
	t.Parallel()

	s := lineSpace()
	entries := lineEntries(4, 5, 6, 20)
	for i := range entries {
		entries[i].parentDist = []float64{1, 0.5, 2, 3}[i]
	}
	res := s.maxLowerBoundSplit(entries)
	assert.Equal(t, [2][]float64{{5}, {20}}, res.routing)
	assert.Equal(t, []uint64{1, 2, 3}, groupRefs(res.groups[0]))
	assert.Equal(t, []uint64{4}, groupRefs(res.groups[1]))
}

func TestPackTiles(t *testing.T) {
	t.Parallel()

	s := &spatialSpace{dim: 2}
	var entries []entry[[]float64]
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			entries = append(entries, entry[[]float64]{ref: uint64(len(entries) + 1), obj: []float64{float64(x), float64(y)}})
		}
	}
	groups := s.pack(entries, 4, true)
	require.Len(t, groups, 4)
	var total int
	for _, g := range groups {
		require.Len(t, g, 4)
		rs := make([]rect, len(g))
		for i := range g {
			rs[i] = entryRect(&g[i], true)
		}
		assert.Equal(t, 2.0, boundingRect(rs).margin(), "each page is a 2x2 tile")
		total += len(g)
	}
	assert.Equal(t, len(entries), total)

	assert.Nil(t, lineSpace().pack(lineEntries(1, 2), 4, true))
}

func TestMinEntries(t *testing.T) {
	t.Parallel()

	cfg := &splitConfig{leafCap: 6, dirCap: 4, minFill: 0.4}
	cases := []struct {
		leaf bool
		n    int
		want int
	}{
		{false, 5, 2},  // 4*0.4 rounds down to 1, raised to 2
		{false, 13, 2}, // forced split of a three block supernode
		{true, 7, 2},
		{true, 3, 1},
		{false, 2, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cfg.minEntries(tc.leaf, tc.n), "leaf=%v n=%d", tc.leaf, tc.n)
	}

	wide := &splitConfig{leafCap: 50, dirCap: 50, minFill: 0.4}
	assert.Equal(t, 20, wide.minEntries(false, 51))
}

func TestSmallDirectoryHeight(t *testing.T) {
	t.Parallel()

	pts := randomPoints(31, 3000, 4)
	cases := map[string]struct {
		variant Variant
		opts    []Option
	}{
		"rstar":             {RStarTree, nil},
		"rstar no reinsert": {RStarTree, []Option{WithReinsertFraction(0)}},
		"xtree volume":      {XTree, []Option{WithMaxOverlap(0.2, OverlapVolume)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			opts := append([]Option{WithLeafCapacity(6), WithDirCapacity(4)}, tc.opts...)
			tr := openVectors(t, tc.variant, 4, opts...)
			insertPoints(t, tr, pts)

			assert.LessOrEqual(t, tr.Height(), 12, "two entries per side keep the fan-out above one")
			require.NoError(t, tr.Verify())

			q := []float64{0.5, 0.5, 0.5, 0.5}
			got, err := tr.KNNQuery(q, 8)
			require.NoError(t, err)
			want := bruteKNN[[]float64](distance.Euclidean, pts, q, 8)
			assert.InDeltaSlice(t, neighborDists(want), neighborDists(got), 1e-12)
		})
	}
}
