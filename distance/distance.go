// Package distance provides the distance functions the trees are built on.
//
// Metric trees only rely on Func and the triangle inequality. Spatial trees
// additionally need MinDist, a lower bound of the distance from a query
// vector to any point inside an axis-aligned rectangle.
package distance

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
)

// Func measures the distance between two objects.
type Func[O any] interface {
	Distance(a, b O) float64
}

// FuncOf adapts a plain function into a Func.
type FuncOf[O any] func(a, b O) float64

func (f FuncOf[O]) Distance(a, b O) float64 { return f(a, b) }

// Spatial is a vector distance that can lower-bound the distance to a
// rectangle given by its lower and upper corners.
type Spatial interface {
	Func[[]float64]
	MinDist(q, min, max []float64) float64
}

// Minkowski is the Lp distance for P >= 1. P = +Inf gives the maximum norm.
type Minkowski struct {
	P float64
}

var (
	Euclidean = Minkowski{P: 2}
	Manhattan = Minkowski{P: 1}
	Maximum   = Minkowski{P: math.Inf(1)}
)

func (m Minkowski) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, m.P)
}

// MinDist is the Lp norm of the per-axis gap between q and the rectangle.
func (m Minkowski) MinDist(q, min, max []float64) float64 {
	gap := make([]float64, len(q))
	for i, v := range q {
		switch {
		case v < min[i]:
			gap[i] = min[i] - v
		case v > max[i]:
			gap[i] = v - max[i]
		}
	}
	return floats.Norm(gap, m.P)
}

// Hamming counts differing bits between two 64-bit fingerprints.
type Hamming struct{}

func (Hamming) Distance(a, b uint64) float64 {
	return float64(bits.OnesCount64(a ^ b))
}

var (
	_ Spatial      = Minkowski{}
	_ Func[uint64] = Hamming{}
)
