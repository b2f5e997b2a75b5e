package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Assemble validates a candidate feature sequence and packages it as a
// vector. Values are used as given; no rescaling is applied.
func Assemble(features []float64, dim int) (*mat.VecDense, error) {
	if dim <= 0 {
		return nil, &DimensionMismatchError{Got: len(features), Want: dim, Reason: "feature dimension must be positive"}
	}
	if len(features) != dim {
		return nil, &DimensionMismatchError{Got: len(features), Want: dim}
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &DimensionMismatchError{
				Got:    len(features),
				Want:   dim,
				Reason: fmt.Sprintf("element %d is not finite (%v)", i, v),
			}
		}
	}
	data := make([]float64, dim)
	copy(data, features)
	return mat.NewVecDense(dim, data), nil
}
