package simdex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simdex/distance"
)

func TestInsertAllValidation(t *testing.T) {
	t.Parallel()

	tr := openVectors(t, RStarTree, 2)
	require.NoError(t, tr.Insert(3, []float64{0, 0}))

	assert.ErrorIs(t, tr.InsertAll([]DBID{1}, nil), ErrInvalidArgument)
	assert.ErrorIs(t, tr.InsertAll([]DBID{1, 1}, [][]float64{{1, 1}, {2, 2}}), ErrInvalidArgument)
	assert.ErrorIs(t, tr.InsertAll([]DBID{1, 3}, [][]float64{{1, 1}, {2, 2}}), ErrInvalidArgument)
	assert.ErrorIs(t, tr.InsertAll([]DBID{1, 2}, [][]float64{{1, 1}, {2}}), ErrInvalidArgument)
	assert.Equal(t, 1, tr.Len(), "a rejected batch inserts nothing")

	require.NoError(t, tr.InsertAll(nil, nil))
	require.NoError(t, tr.InsertAll([]DBID{1, 2}, [][]float64{{1, 1}, {2, 2}}))
	assert.Equal(t, 3, tr.Len())
}

func TestBulkLoadSTR(t *testing.T) {
	t.Parallel()

	pts := randomPoints(81, 1000, 3)
	queries := randomPoints(82, 20, 3)
	kdist := bruteKDist[[]float64](distance.Euclidean, pts, 5)

	for _, v := range []Variant{RStarTree, RdKNNTree, XTree} {
		t.Run(v.String(), func(t *testing.T) {
			t.Parallel()
			tr := openVectors(t, v, 3, WithBulkLoad(BulkLoadSTR), WithLeafCapacity(20), WithDirCapacity(8))
			require.NoError(t, tr.InsertAll(idsFor(len(pts)), pts))
			require.NoError(t, tr.Verify())
			assert.Equal(t, 1000, tr.Len())
			assert.Equal(t, 3, tr.Height(), "50 leaves under 7 directories under the root")
			assert.Zero(t, tr.Stats().Splits)

			for _, q := range queries {
				got, err := tr.KNNQuery(q, 8)
				require.NoError(t, err)
				assert.Equal(t, bruteKNN[[]float64](distance.Euclidean, pts, q, 8), got)
				if v == RdKNNTree {
					rk, err := tr.ReverseKNNQuery(q, 5)
					require.NoError(t, err)
					assert.Equal(t, bruteRKNN[[]float64](distance.Euclidean, pts, kdist, q), rk)
				}
			}

			// A packed tree keeps accepting ordinary inserts.
			extra := randomPoints(83, 100, 3)
			for i, p := range extra {
				require.NoError(t, tr.Insert(DBID(2000+i), p))
			}
			require.NoError(t, tr.Verify())

			// A second batch on a non-empty tree is inserted one by one.
			more := randomPoints(84, 50, 3)
			ids := make([]DBID, len(more))
			for i := range ids {
				ids[i] = DBID(3000 + i)
			}
			require.NoError(t, tr.InsertAll(ids, more))
			require.NoError(t, tr.Verify())
			assert.Equal(t, 1150, tr.Len())
		})
	}
}

func TestInsertAllMatchesInsert(t *testing.T) {
	t.Parallel()

	pts := randomPoints(91, 300, 2)
	batch := openVectors(t, MkMaxTree, 2, WithLeafCapacity(8))
	require.NoError(t, batch.InsertAll(idsFor(len(pts)), pts))
	single := openVectors(t, MkMaxTree, 2, WithLeafCapacity(8))
	insertPoints(t, single, pts)

	for _, q := range randomPoints(92, 10, 2) {
		a, err := batch.ReverseKNNQuery(q, 3)
		require.NoError(t, err)
		b, err := single.ReverseKNNQuery(q, 3)
		require.NoError(t, err)
		assert.Equal(t, b, a)
	}
}
