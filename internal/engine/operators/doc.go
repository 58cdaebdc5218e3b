// Package operators provides the ONNX operator kernels run by the engine.
//
// Kernels operate on *tensor.Tensor values on the CPU. Binary elementwise
// operators follow NumPy (multidirectional) broadcasting.
package operators
