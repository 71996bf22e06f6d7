package simdex

import (
	"encoding/binary"
	"math"
)

// Validator is implemented by codecs that cannot encode every value of O.
// Metric trees reject objects failing Validate with ErrInvalidArgument
// before they reach a page or a distance function.
type Validator[O any] interface {
	Validate(o O) error
}

// Codec encodes objects into a fixed number of bytes so that entries have a
// fixed width on disk.
type Codec[O any] interface {
	Size() int
	Encode(dst []byte, o O)
	Decode(src []byte) O
}

// VectorCodec stores a float64 vector of fixed dimension.
type VectorCodec struct {
	Dim int
}

func (c VectorCodec) Size() int { return 8 * c.Dim }

func (c VectorCodec) Encode(dst []byte, v []float64) {
	for i := 0; i < c.Dim; i++ {
		binary.LittleEndian.PutUint64(dst[8*i:], math.Float64bits(v[i]))
	}
}

// Validate rejects vectors of the wrong dimension and non-finite
// coordinates.
func (c VectorCodec) Validate(v []float64) error {
	if len(v) != c.Dim {
		return errorf("vector has %d dimensions, tree has %d", len(v), c.Dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errorf("vector coordinate %d is %v", i, x)
		}
	}
	return nil
}

func (c VectorCodec) Decode(src []byte) []float64 {
	v := make([]float64, c.Dim)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:]))
	}
	return v
}

// Uint64Codec stores 64-bit fingerprints such as perceptual hashes.
type Uint64Codec struct{}

func (Uint64Codec) Size() int { return 8 }

func (Uint64Codec) Encode(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func (Uint64Codec) Decode(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

var (
	_ Codec[[]float64]     = VectorCodec{}
	_ Validator[[]float64] = VectorCodec{}
	_ Codec[uint64]        = Uint64Codec{}
)
