package simdex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simdex/distance"
)

func TestSupernodeGrowth(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	tr := openVectors(t, XTree, 2,
		WithLeafCapacity(4), WithDirCapacity(4),
		WithMaxSupernodeBlocks(3),
		WithMaxOverlap(0, OverlapData),
		WithLogger(log))

	pts := make([][]float64, 200)
	for i := range pts {
		pts[i] = []float64{1, 1}
	}
	insertPoints(t, tr, pts)

	st := tr.Stats()
	assert.NotZero(t, st.Supernodes)
	assert.True(t, log.has("warn", "supernode at block limit, forcing split"))
	require.NoError(t, tr.Verify())

	got, err := tr.KNNQuery([]float64{1, 1}, 7)
	require.NoError(t, err)
	assert.Equal(t, idsFor(7), neighborIDs(got))

	got, err = tr.RangeQuery([]float64{1, 1}, 0)
	require.NoError(t, err)
	assert.Len(t, got, len(pts))

	got, err = tr.RangeQuery([]float64{2, 2}, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSupernodeOverlapVolume(t *testing.T) {
	t.Parallel()

	// Degenerate regions have no volume, so they never overlap by volume.
	tr := openVectors(t, XTree, 2,
		WithLeafCapacity(4), WithDirCapacity(4),
		WithMaxOverlap(0, OverlapVolume))
	pts := make([][]float64, 100)
	for i := range pts {
		pts[i] = []float64{3, 3}
	}
	insertPoints(t, tr, pts)
	assert.Zero(t, tr.Stats().Supernodes)
	require.NoError(t, tr.Verify())

	spread := openVectors(t, XTree, 3,
		WithLeafCapacity(6), WithDirCapacity(4),
		WithMaxOverlap(0.05, OverlapVolume))
	rpts := randomPoints(11, 800, 3)
	insertPoints(t, spread, rpts)
	require.NoError(t, spread.Verify())

	for _, q := range randomPoints(12, 20, 3) {
		got, err := spread.KNNQuery(q, 9)
		require.NoError(t, err)
		want := bruteKNN[[]float64](distance.Euclidean, rpts, q, 9)
		assert.InDeltaSlice(t, neighborDists(want), neighborDists(got), 1e-12)
	}
}

func TestSupernodePersists(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/x.idx"
	opts := []Option{
		WithPath(path), WithLeafCapacity(4), WithDirCapacity(4),
		WithMaxSupernodeBlocks(8), WithMaxOverlap(0, OverlapData),
	}
	tr, err := openVectorsErr(XTree, 2, opts...)
	require.NoError(t, err)
	pts := make([][]float64, 60)
	for i := range pts {
		pts[i] = []float64{0, 0}
	}
	insertPoints(t, tr, pts)
	require.NotZero(t, tr.Stats().Supernodes)
	require.NoError(t, tr.Close())

	tr, err = openVectorsErr(XTree, 2, opts...)
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, len(pts), tr.Len())
	require.NoError(t, tr.Verify())

	got, err := tr.RangeQuery([]float64{0.5, 0}, 0.5)
	require.NoError(t, err)
	assert.Len(t, got, len(pts))
}

func TestXTreeDistribution(t *testing.T) {
	t.Parallel()

	same := make([]rect, 5)
	for i := range same {
		same[i] = rect{min: []float64{0, 0}, max: []float64{1, 1}}
	}
	log := &recordingLogger{}
	cfg := &splitConfig{maxOverlap: 0.2, overlapMetric: OverlapData, maxBlocks: 3, log: log}

	_, super := xtreeDistribution(same, 2, 1, cfg)
	assert.True(t, super)
	assert.False(t, log.has("warn", "supernode at block limit, forcing split"))

	d, super := xtreeDistribution(same, 2, 3, cfg)
	assert.False(t, super)
	assert.GreaterOrEqual(t, d.k, 2)
	assert.LessOrEqual(t, d.k, 3)
	assert.True(t, log.has("warn", "supernode at block limit, forcing split"))

	apart := []rect{
		{min: []float64{0, 0}, max: []float64{1, 1}},
		{min: []float64{0, 2}, max: []float64{1, 3}},
		{min: []float64{5, 0}, max: []float64{6, 1}},
		{min: []float64{5, 2}, max: []float64{6, 3}},
	}
	d, super = xtreeDistribution(apart, 2, 1, cfg)
	assert.False(t, super)
	assert.Equal(t, 2, d.k)
}

func TestOverlapOf(t *testing.T) {
	t.Parallel()

	rects := []rect{
		{min: []float64{0, 0}, max: []float64{2, 2}},
		{min: []float64{1, 1}, max: []float64{3, 3}},
		{min: []float64{5, 5}, max: []float64{6, 6}},
		{min: []float64{1.5, 1.5}, max: []float64{1.6, 1.6}},
	}
	b0 := rects[0]
	b1 := rects[1]

	// Intersection [1,2]x[1,2] of volume 1 against volumes 4 + 4.
	assert.InDelta(t, 1.0/8, overlapOf(rects, b0, b1, OverlapVolume), 1e-12)
	// Three of four rects touch the intersection.
	assert.InDelta(t, 0.75, overlapOf(rects, b0, b1, OverlapData), 1e-12)

	assert.Zero(t, overlapOf(rects, b0, rects[2], OverlapVolume))
	assert.Zero(t, overlapOf(rects, b0, rects[2], OverlapData))
}
