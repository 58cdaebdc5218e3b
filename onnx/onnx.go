// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx reads ONNX models and runs them on the built-in CPU engine.
//
// Parsing and serialization work on plain Go structs mirroring onnx.proto
// (ModelProto, GraphProto, NodeProto, TensorProto). Anything with a Marshal
// method, including *ModelProto and RawModel, can be handed to the backend
// package.
//
// # Example Usage
//
//	import (
//	    "github.com/born-ml/onnxbackend/onnx"
//	    "github.com/born-ml/onnxbackend/tensor"
//	)
//
//	model, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	input := tensor.MustNew(tensor.Shape{1, 3}, []float32{1, 2, 3})
//	outputs, err := model.Forward(map[string]*tensor.Tensor{"X": input})
//
// # Supported Operators
//
//   - Arithmetic: Add, Sub, Mul, Div, Pow, Neg, Abs, Sqrt, Exp, Log, Reciprocal, Floor, Ceil
//   - Activation: Relu, LeakyRelu, PRelu, Sigmoid, Tanh, Softmax, LogSoftmax, Clip
//   - Matrix: MatMul, Gemm
//   - Reduction: ReduceSum, ReduceMean, ReduceMax
//   - Shape: Shape, Reshape, Flatten, Transpose, Squeeze, Unsqueeze, Concat, Gather, Expand
//   - Logic: Equal, Greater, Less, Not, Where
//   - Other: Identity, Dropout, Constant, ConstantOfShape, Cast, Size
//
// Use [ListSupportedOps] to get the complete list.
package onnx

import (
	"github.com/born-ml/onnxbackend/internal/engine"
	"github.com/born-ml/onnxbackend/internal/engine/operators"
	internalonnx "github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/tensor"
)

// Protobuf structures.
type (
	ModelProto     = internalonnx.ModelProto
	GraphProto     = internalonnx.GraphProto
	NodeProto      = internalonnx.NodeProto
	TensorProto    = internalonnx.TensorProto
	ValueInfoProto = internalonnx.ValueInfoProto
	AttributeProto = internalonnx.AttributeProto
	OperatorSetID  = internalonnx.OperatorSetID
)

// Marshaler is implemented by model descriptors that can produce their ONNX
// serialization.
type Marshaler = internalonnx.Marshaler

// RawModel is an already serialized model. Its Marshal returns the bytes
// unchanged.
type RawModel = internalonnx.RawModel

// ErrMalformed is returned when bytes are not valid ONNX protobuf.
var ErrMalformed = internalonnx.ErrMalformed

// Parse decodes a serialized model.
func Parse(data []byte) (*ModelProto, error) {
	return internalonnx.Parse(data)
}

// ParseFile reads and decodes a .onnx file.
func ParseFile(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}

// Marshal serializes a model to the ONNX wire format.
func Marshal(m *ModelProto) ([]byte, error) {
	return internalonnx.Marshal(m)
}

// ReadTensorFile reads a serialized TensorProto, as stored in ONNX test data
// sets, and returns its name and value.
func ReadTensorFile(path string) (string, *tensor.Tensor, error) {
	return internalonnx.ReadTensorFile(path)
}

// Load loads an ONNX model from a file path.
//
// The graph is sorted and every operator checked against the registry;
// an unsupported operator fails the load.
//
// Example:
//
//	model, err := onnx.Load("resnet18.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Inputs:", model.InputNames())
//	fmt.Println("Opset:", model.OpsetVersion())
func Load(path string) (Model, error) {
	net, err := engine.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return net, nil
}

// LoadFromBytes loads an ONNX model from raw bytes.
//
// This is useful when the model is embedded in the binary or received over
// the network.
func LoadFromBytes(data []byte) (Model, error) {
	net, err := engine.LoadNetwork(engine.FormatONNX, data)
	if err != nil {
		return nil, err
	}
	return net, nil
}

// ModelInfo contains metadata about an ONNX model without loading weights.
//
// Use [GetModelInfo] to quickly inspect a model file before loading.
type ModelInfo = internalonnx.ModelInfo

// ValueSummary describes a graph input or output in a ModelInfo.
type ValueSummary = internalonnx.ValueSummary

// GetModelInfo extracts metadata from an ONNX file without building a
// network.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Producer: %s\n", info.ProducerName)
//	fmt.Printf("Operators: %v\n", info.Operators)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// ListSupportedOps returns the sorted names of all operators the engine
// executes.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
