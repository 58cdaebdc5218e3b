package conformance

import (
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// maxReported bounds the mismatching elements listed in an error.
const maxReported = 5

// Compare checks got against want: same dtype and shape, and every element
// within atol + rtol*|want|. NaNs compare equal to NaNs.
func Compare(got, want *tensor.Tensor, rtol, atol float64) error {
	if got.DType() != want.DType() {
		return fmt.Errorf("dtype %s, expected %s", got.DType(), want.DType())
	}
	if !slices.Equal(got.Shape(), want.Shape()) {
		return fmt.Errorf("shape %v, expected %v", got.Shape(), want.Shape())
	}

	g, w := got.Float64s(), want.Float64s()
	var bad []string
	mismatched := 0
	for i := range w {
		if within(g[i], w[i], rtol, atol) {
			continue
		}
		mismatched++
		if len(bad) < maxReported {
			bad = append(bad, fmt.Sprintf("[%d] %g != %g", i, g[i], w[i]))
		}
	}
	if mismatched > 0 {
		return fmt.Errorf("%d of %d elements differ (rtol %g, atol %g): %v", mismatched, len(w), rtol, atol, bad)
	}
	return nil
}

func within(a, b, rtol, atol float64) bool {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.IsNaN(a) && math.IsNaN(b)
	case math.IsInf(b, 0):
		return a == b
	default:
		return math.Abs(a-b) <= atol+rtol*math.Abs(b)
	}
}
