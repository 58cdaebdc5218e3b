package tensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1 // Scalar has 1 element
	for _, dim := range s {
		n *= dim
	}
	return n
}

// MaxElements bounds the element count of any tensor this package creates.
const MaxElements = 1 << 32

// ErrShapeTooLarge is returned when a shape's element count exceeds MaxElements.
var ErrShapeTooLarge = errors.New("shape too large")

// Validate checks that no dimension is negative and that the element count
// fits in MaxElements. Zero-sized dimensions are legal in ONNX and produce
// empty tensors.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	if _, ok := CheckedNumElements(s); !ok {
		return fmt.Errorf("%w: %v exceeds %d elements", ErrShapeTooLarge, s, MaxElements)
	}
	return nil
}

// CheckedNumElements multiplies dims and reports false when a dimension is
// negative or the product exceeds MaxElements. Any zero dimension yields 0.
func CheckedNumElements[D ~int | ~int64](dims []D) (int, bool) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, false
		}
		if d == 0 {
			return 0, true
		}
	}
	for _, d := range dims {
		if int64(d) > MaxElements/int64(n) {
			return 0, false
		}
		n *= int(d)
	}
	return n, true
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Strides calculates row-major strides for the shape.
// stride[i] is the product of all dimensions after i.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// NormalizeAxis maps a possibly negative axis into [0, rank).
func NormalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}

// BroadcastShapes implements NumPy-style (multidirectional) broadcasting.
//
// Shapes are compared right to left; dimensions are compatible when equal or
// when one of them is 1, and missing leading dimensions are treated as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(5)    + (3, 5) → (3, 5)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(shapes ...Shape) (Shape, error) {
	rank := 0
	for _, s := range shapes {
		rank = max(rank, len(s))
	}

	result := make(Shape, rank)
	for i := range result {
		result[i] = 1
	}

	for _, s := range shapes {
		offset := rank - len(s)
		for i, dim := range s {
			if dim < 0 {
				return nil, fmt.Errorf("negative dimension %d in shape %v", dim, s)
			}
			out := result[offset+i]
			switch {
			case dim == out:
			case out == 1:
				result[offset+i] = dim
			case dim == 1:
			default:
				return nil, fmt.Errorf("shapes not compatible for broadcasting: %v (dimension %d: %d vs %d)",
					shapes, offset+i, out, dim)
			}
		}
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// BroadcastsTo reports whether in broadcasts unidirectionally to out: in has
// no more dimensions than out and each of its dimensions is 1 or matches.
func BroadcastsTo(in, out Shape) bool {
	if len(in) > len(out) {
		return false
	}
	pad := len(out) - len(in)
	for i, dim := range in {
		if dim != 1 && dim != out[pad+i] {
			return false
		}
	}
	return true
}

// BroadcastOffsets returns, for every element of out in row-major order, the
// flat offset of the element of a tensor shaped in that broadcasts to it.
// in must broadcast to out (see BroadcastsTo); it panics otherwise.
func BroadcastOffsets(in, out Shape) []int {
	if !BroadcastsTo(in, out) {
		panic(fmt.Sprintf("tensor: shape %v does not broadcast to %v", in, out))
	}
	n := out.NumElements()
	offsets := make([]int, n)
	if in.Equal(out) {
		for i := range offsets {
			offsets[i] = i
		}
		return offsets
	}

	inStrides := in.Strides()
	// Stride 0 along broadcast dimensions repeats the same input element.
	strides := make([]int, len(out))
	pad := len(out) - len(in)
	for i := range in {
		if in[i] != 1 {
			strides[pad+i] = inStrides[i]
		}
	}

	index := make([]int, len(out))
	for flat := 0; flat < n; flat++ {
		off := 0
		for d, idx := range index {
			off += idx * strides[d]
		}
		offsets[flat] = off

		for d := len(out) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < out[d] {
				break
			}
			index[d] = 0
		}
	}
	return offsets
}
