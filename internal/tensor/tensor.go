package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrDataType is returned when a tensor is accessed with the wrong element type.
var ErrDataType = errors.New("tensor data type mismatch")

// Tensor is a dense, row-major tensor. The element slice is held as its
// concrete Go type ([]float32, []int64, ...) selected by dtype.
type Tensor struct {
	dtype DataType
	shape Shape
	data  any
}

// New creates a tensor over data. The slice is not copied.
func New[T Element](shape Shape, data []T) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{
		dtype: DataTypeOf[T](),
		shape: shape.Clone(),
		data:  data,
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew[T Element](shape Shape, data []T) *Tensor {
	t, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// FromSlice creates a 1-D tensor from values.
func FromSlice[T Element](values ...T) *Tensor {
	return MustNew(Shape{len(values)}, values)
}

// Scalar creates a rank-0 tensor.
func Scalar[T Element](v T) *Tensor {
	return MustNew(Shape{}, []T{v})
}

// Zeros allocates a zero-filled tensor of the given type.
func Zeros(dtype DataType, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	n := shape.NumElements()
	var data any
	switch dtype {
	case Float32:
		data = make([]float32, n)
	case Float64:
		data = make([]float64, n)
	case Int32:
		data = make([]int32, n)
	case Int64:
		data = make([]int64, n)
	case Uint8:
		data = make([]uint8, n)
	case Int8:
		data = make([]int8, n)
	case Bool:
		data = make([]bool, n)
	default:
		return nil, fmt.Errorf("unsupported data type %v", dtype)
	}
	return &Tensor{dtype: dtype, shape: shape.Clone(), data: data}, nil
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Shape returns the tensor's shape. The result must not be modified.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Raw returns the underlying typed slice.
func (t *Tensor) Raw() any {
	return t.data
}

// Data returns the tensor's elements as []T without copying.
func Data[T Element](t *Tensor) ([]T, error) {
	data, ok := t.data.([]T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: have %s, want %T", ErrDataType, t.dtype, zero)
	}
	return data, nil
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			t.shape, t.NumElements(), shape, shape.NumElements())
	}
	return &Tensor{dtype: t.dtype, shape: shape.Clone(), data: t.data}, nil
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	var data any
	switch d := t.data.(type) {
	case []float32:
		data = append([]float32(nil), d...)
	case []float64:
		data = append([]float64(nil), d...)
	case []int32:
		data = append([]int32(nil), d...)
	case []int64:
		data = append([]int64(nil), d...)
	case []uint8:
		data = append([]uint8(nil), d...)
	case []int8:
		data = append([]int8(nil), d...)
	case []bool:
		data = append([]bool(nil), d...)
	}
	return &Tensor{dtype: t.dtype, shape: t.shape.Clone(), data: data}
}

// Float64s widens any tensor's elements to float64. Bools become 0 or 1.
func (t *Tensor) Float64s() []float64 {
	switch d := t.data.(type) {
	case []float32:
		return widen(d)
	case []float64:
		return append([]float64(nil), d...)
	case []int32:
		return widen(d)
	case []int64:
		return widen(d)
	case []uint8:
		return widen(d)
	case []int8:
		return widen(d)
	case []bool:
		out := make([]float64, len(d))
		for i, v := range d {
			if v {
				out[i] = 1
			}
		}
		return out
	}
	return nil
}

// Int64s converts an integer tensor's elements to int64, as used for shape,
// axes and index operands.
func (t *Tensor) Int64s() ([]int64, error) {
	switch d := t.data.(type) {
	case []int64:
		return d, nil
	case []int32:
		out := make([]int64, len(d))
		for i, v := range d {
			out[i] = int64(v)
		}
		return out, nil
	case []uint8:
		out := make([]int64, len(d))
		for i, v := range d {
			out[i] = int64(v)
		}
		return out, nil
	case []int8:
		out := make([]int64, len(d))
		for i, v := range d {
			out[i] = int64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s is not an integer type", ErrDataType, t.dtype)
}

// Cast converts t to dtype. Float to integer conversion truncates toward zero.
func Cast(t *Tensor, dtype DataType) (*Tensor, error) {
	if t.dtype == dtype {
		return t, nil
	}
	return fromFloat64s(dtype, t.shape, t.Float64s())
}

func fromFloat64s(dtype DataType, shape Shape, vals []float64) (*Tensor, error) {
	switch dtype {
	case Float32:
		return New(shape, narrow[float32](vals))
	case Float64:
		return New(shape, vals)
	case Int32:
		return New(shape, narrow[int32](vals))
	case Int64:
		return New(shape, narrow[int64](vals))
	case Uint8:
		return New(shape, narrow[uint8](vals))
	case Int8:
		return New(shape, narrow[int8](vals))
	case Bool:
		out := make([]bool, len(vals))
		for i, v := range vals {
			out[i] = v != 0
		}
		return New(shape, out)
	}
	return nil, fmt.Errorf("unsupported data type %v", dtype)
}

func widen[T Numeric](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func narrow[T Numeric](in []float64) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = T(v)
	}
	return out
}

// String renders a short description: dtype, shape and up to eight values.
func (t *Tensor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tensor(%s, %v", t.dtype, t.shape)
	vals := t.Float64s()
	if len(vals) > 0 {
		b.WriteString(", [")
		for i, v := range vals {
			if i == 8 {
				b.WriteString(" ...")
				break
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			if math.Trunc(v) == v && !t.dtype.IsFloat() {
				fmt.Fprintf(&b, "%d", int64(v))
			} else {
				fmt.Fprintf(&b, "%g", v)
			}
		}
		b.WriteByte(']')
	}
	b.WriteByte(')')
	return b.String()
}
