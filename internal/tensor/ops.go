package tensor

import "fmt"

// Take returns a tensor of the given shape whose i-th element is t's element
// at flat offset src[i]. It is the building block for layout operations
// (transpose, broadcast, concat, select) that do not depend on element type.
func Take(t *Tensor, shape Shape, src []int) (*Tensor, error) {
	if len(src) != shape.NumElements() {
		return nil, fmt.Errorf("take: %d offsets for shape %v", len(src), shape)
	}
	switch d := t.data.(type) {
	case []float32:
		return New(shape, take(d, src))
	case []float64:
		return New(shape, take(d, src))
	case []int32:
		return New(shape, take(d, src))
	case []int64:
		return New(shape, take(d, src))
	case []uint8:
		return New(shape, take(d, src))
	case []int8:
		return New(shape, take(d, src))
	case []bool:
		return New(shape, take(d, src))
	}
	return nil, fmt.Errorf("take: unsupported data type %s", t.dtype)
}

// Join concatenates the flat data of tensors sharing one data type into a
// 1-D tensor. Offsets into the result address the inputs back to back.
func Join(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("join: no tensors")
	}
	for _, t := range ts[1:] {
		if t.dtype != ts[0].dtype {
			return nil, fmt.Errorf("join: mixed data types %s and %s", ts[0].dtype, t.dtype)
		}
	}
	switch ts[0].dtype {
	case Float32:
		return join[float32](ts)
	case Float64:
		return join[float64](ts)
	case Int32:
		return join[int32](ts)
	case Int64:
		return join[int64](ts)
	case Uint8:
		return join[uint8](ts)
	case Int8:
		return join[int8](ts)
	case Bool:
		return join[bool](ts)
	}
	return nil, fmt.Errorf("join: unsupported data type %s", ts[0].dtype)
}

func take[T Element](data []T, src []int) []T {
	out := make([]T, len(src))
	for i, off := range src {
		out[i] = data[off]
	}
	return out
}

func join[T Element](ts []*Tensor) (*Tensor, error) {
	n := 0
	for _, t := range ts {
		n += t.NumElements()
	}
	out := make([]T, 0, n)
	for _, t := range ts {
		out = append(out, t.data.([]T)...)
	}
	return New(Shape{n}, out)
}
