package distance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinkowski(t *testing.T) {
	t.Parallel()

	a := []float64{0, 0}
	b := []float64{3, 4}
	assert.InDelta(t, 5.0, Euclidean.Distance(a, b), 1e-12)
	assert.InDelta(t, 7.0, Manhattan.Distance(a, b), 1e-12)
	assert.InDelta(t, 4.0, Maximum.Distance(a, b), 1e-12)
}

func TestMinDist(t *testing.T) {
	t.Parallel()

	min := []float64{1, 1}
	max := []float64{2, 3}

	// Inside the rectangle.
	assert.Equal(t, 0.0, Euclidean.MinDist([]float64{1.5, 2}, min, max))
	// Left of the rectangle, within its vertical extent.
	assert.InDelta(t, 1.0, Euclidean.MinDist([]float64{0, 2}, min, max), 1e-12)
	// Diagonal to the upper corner.
	assert.InDelta(t, 5.0, Euclidean.MinDist([]float64{5, 7}, min, max), 1e-12)
	assert.InDelta(t, 7.0, Manhattan.MinDist([]float64{5, 7}, min, max), 1e-12)
	assert.InDelta(t, 4.0, Maximum.MinDist([]float64{5, 7}, min, max), 1e-12)
}

func TestMinDistLowerBound(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	for _, m := range []Minkowski{Euclidean, Manhattan, Maximum} {
		for i := 0; i < 200; i++ {
			q := []float64{rng.Float64() * 10, rng.Float64() * 10, rng.Float64() * 10}
			lo := []float64{rng.Float64() * 5, rng.Float64() * 5, rng.Float64() * 5}
			hi := []float64{lo[0] + rng.Float64()*5, lo[1] + rng.Float64()*5, lo[2] + rng.Float64()*5}
			p := []float64{
				lo[0] + rng.Float64()*(hi[0]-lo[0]),
				lo[1] + rng.Float64()*(hi[1]-lo[1]),
				lo[2] + rng.Float64()*(hi[2]-lo[2]),
			}
			assert.LessOrEqual(t, m.MinDist(q, lo, hi), m.Distance(q, p)+1e-12)
		}
	}
}

func TestHamming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Hamming{}.Distance(0xFF, 0xFF))
	assert.Equal(t, 8.0, Hamming{}.Distance(0xFF, 0x00))
	assert.Equal(t, 64.0, Hamming{}.Distance(0, math.MaxUint64))
}

func TestFuncOf(t *testing.T) {
	t.Parallel()

	abs := FuncOf[int](func(a, b int) float64 { return math.Abs(float64(a - b)) })
	assert.Equal(t, 3.0, abs.Distance(2, 5))
}
