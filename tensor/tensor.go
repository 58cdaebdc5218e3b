// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// Type aliases for public API

// Tensor is a dense tensor with a runtime data type.
type Tensor = tensor.Tensor

// Element is a constraint for tensor element types.
type Element = tensor.Element

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	Int8    DataType = tensor.Int8
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// ErrDataType is returned by Data when the requested element type does not
// match the tensor.
var ErrDataType = tensor.ErrDataType

// New creates a tensor over data without copying it.
//
// Example:
//
//	x, err := tensor.New(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
func New[T Element](shape Shape, data []T) (*Tensor, error) {
	return tensor.New(shape, data)
}

// MustNew is like New but panics on error.
func MustNew[T Element](shape Shape, data []T) *Tensor {
	return tensor.MustNew(shape, data)
}

// FromSlice creates a 1-D tensor.
func FromSlice[T Element](values ...T) *Tensor {
	return tensor.FromSlice(values...)
}

// Scalar creates a rank-0 tensor.
func Scalar[T Element](v T) *Tensor {
	return tensor.Scalar(v)
}

// Zeros allocates a zero-filled tensor.
func Zeros(dtype DataType, shape Shape) (*Tensor, error) {
	return tensor.Zeros(dtype, shape)
}

// Data returns the elements of t as []T without copying.
func Data[T Element](t *Tensor) ([]T, error) {
	return tensor.Data[T](t)
}

// Cast converts t to dtype.
func Cast(t *Tensor, dtype DataType) (*Tensor, error) {
	return tensor.Cast(t, dtype)
}
