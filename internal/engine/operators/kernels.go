package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxbackend/internal/parallel"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// workers splits elementwise loops; matrix kernels split over batches.
var workers = parallel.DefaultConfig()

// broadcastApply evaluates f over the broadcast of a and b.
func broadcastApply[T, R tensor.Element](a, b *tensor.Tensor, f func(x, y T) R) (*tensor.Tensor, error) {
	shape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	ad, err := tensor.Data[T](a)
	if err != nil {
		return nil, err
	}
	bd, err := tensor.Data[T](b)
	if err != nil {
		return nil, err
	}

	ao := tensor.BroadcastOffsets(a.Shape(), shape)
	bo := tensor.BroadcastOffsets(b.Shape(), shape)
	out := make([]R, len(ao))
	parallel.Range(len(out), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = f(ad[ao[i]], bd[bo[i]])
		}
	})
	return tensor.New(shape, out)
}

// arith returns the elementwise function for a binary arithmetic operator.
func arith[T tensor.Numeric](op string) func(x, y T) T {
	switch op {
	case "Add":
		return func(x, y T) T { return x + y }
	case "Sub":
		return func(x, y T) T { return x - y }
	case "Mul":
		return func(x, y T) T { return x * y }
	case "Div":
		return func(x, y T) T { return x / y }
	case "Pow":
		return func(x, y T) T { return T(math.Pow(float64(x), float64(y))) }
	}
	panic("operators: unknown arithmetic op " + op)
}

func binaryNumeric(op string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: mismatched input types %s and %s", op, a.DType(), b.DType())
	}
	switch a.DType() {
	case tensor.Float32:
		return broadcastApply(a, b, arith[float32](op))
	case tensor.Float64:
		return broadcastApply(a, b, arith[float64](op))
	case tensor.Int32:
		return broadcastApply(a, b, arith[int32](op))
	case tensor.Int64:
		return broadcastApply(a, b, arith[int64](op))
	case tensor.Uint8:
		return broadcastApply(a, b, arith[uint8](op))
	case tensor.Int8:
		return broadcastApply(a, b, arith[int8](op))
	}
	return nil, fmt.Errorf("%s: unsupported type %s", op, a.DType())
}

func compare[T tensor.Numeric](op string) func(x, y T) bool {
	switch op {
	case "Equal":
		return func(x, y T) bool { return x == y }
	case "Greater":
		return func(x, y T) bool { return x > y }
	case "Less":
		return func(x, y T) bool { return x < y }
	}
	panic("operators: unknown comparison op " + op)
}

func compareNumeric(op string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: mismatched input types %s and %s", op, a.DType(), b.DType())
	}
	switch a.DType() {
	case tensor.Float32:
		return broadcastApply(a, b, compare[float32](op))
	case tensor.Float64:
		return broadcastApply(a, b, compare[float64](op))
	case tensor.Int32:
		return broadcastApply(a, b, compare[int32](op))
	case tensor.Int64:
		return broadcastApply(a, b, compare[int64](op))
	case tensor.Uint8:
		return broadcastApply(a, b, compare[uint8](op))
	case tensor.Int8:
		return broadcastApply(a, b, compare[int8](op))
	case tensor.Bool:
		if op == "Equal" {
			return broadcastApply(a, b, func(x, y bool) bool { return x == y })
		}
	}
	return nil, fmt.Errorf("%s: unsupported type %s", op, a.DType())
}

// signed returns the elementwise function for a unary operator defined on
// every numeric type.
func signed[T tensor.Numeric](op string) func(T) T {
	switch op {
	case "Neg":
		return func(v T) T { return -v }
	case "Abs":
		return func(v T) T {
			if v < 0 {
				return -v
			}
			return v
		}
	case "Relu":
		return func(v T) T { return max(v, 0) }
	}
	panic("operators: unknown unary op " + op)
}

func mapSlice[T tensor.Element](in []T, f func(T) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func unaryNumeric(op string, x *tensor.Tensor) (*tensor.Tensor, error) {
	switch d := x.Raw().(type) {
	case []float32:
		return tensor.New(x.Shape(), mapSlice(d, signed[float32](op)))
	case []float64:
		return tensor.New(x.Shape(), mapSlice(d, signed[float64](op)))
	case []int32:
		return tensor.New(x.Shape(), mapSlice(d, signed[int32](op)))
	case []int64:
		return tensor.New(x.Shape(), mapSlice(d, signed[int64](op)))
	case []int8:
		return tensor.New(x.Shape(), mapSlice(d, signed[int8](op)))
	case []uint8:
		return tensor.New(x.Shape(), mapSlice(d, signed[uint8](op)))
	}
	return nil, fmt.Errorf("%s: unsupported type %s", op, x.DType())
}

// unaryFloat maps f over a floating point tensor, computing in float64.
func unaryFloat(op string, x *tensor.Tensor, f func(float64) float64) (*tensor.Tensor, error) {
	switch d := x.Raw().(type) {
	case []float32:
		return tensor.New(x.Shape(), mapSlice(d, func(v float32) float32 { return float32(f(float64(v))) }))
	case []float64:
		return tensor.New(x.Shape(), mapSlice(d, f))
	}
	return nil, fmt.Errorf("%s: unsupported type %s, expected float", op, x.DType())
}

// scalarFloat reads a single value from an optional scalar operand.
func scalarFloat(t *tensor.Tensor, fallback float64) (float64, error) {
	if t == nil {
		return fallback, nil
	}
	vals := t.Float64s()
	if len(vals) != 1 {
		return 0, fmt.Errorf("expected a scalar, got shape %v", t.Shape())
	}
	return vals[0], nil
}

// splitAxis returns the sizes of the dimensions before axis, at axis and
// after it, viewing the tensor as [outer, n, inner].
func splitAxis(shape tensor.Shape, axis int) (outer, n, inner int) {
	outer, inner = 1, 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	return outer, shape[axis], inner
}
