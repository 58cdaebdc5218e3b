// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor type accepted and returned by the
// ONNX backend.
//
// A Tensor is a dense, row-major array with a runtime data type. Tensors are
// created from Go slices and read back with the generic Data accessor:
//
//	x := tensor.MustNew(tensor.Shape{1, 3}, []float32{1, 2, 3})
//	rep, _ := backend.Prepare(model, backend.CPU)
//	outputs, _ := rep.Run(x)
//	values, _ := tensor.Data[float32](outputs[0])
//
// # Supported Data Types
//
//   - float32, float64 (floating-point)
//   - int8, int32, int64 (signed integers)
//   - uint8 (unsigned integers, useful for images)
//   - bool (boolean masks)
//
// FLOAT16 and BFLOAT16 tensors read from ONNX files are widened to float32.
package tensor
