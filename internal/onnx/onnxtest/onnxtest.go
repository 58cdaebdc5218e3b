// Package onnxtest builds small ONNX models for tests.
package onnxtest

import (
	"testing"

	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// DefaultOpset is the default-domain opset version used by Model.
const DefaultOpset = 13

// Model wraps graph in a ModelProto with IR version 8 and the default opset.
func Model(graph *onnx.GraphProto) *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "onnxtest",
		OpsetImport:  []onnx.OperatorSetID{{Domain: "", Version: DefaultOpset}},
		Graph:        graph,
	}
}

// Value describes a tensor-typed graph input or output. A negative dim
// becomes the symbolic dimension "N".
func Value(name string, elemType int32, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		if d < 0 {
			shape.Dims = append(shape.Dims, onnx.DimensionProto{DimParam: "N"})
			continue
		}
		shape.Dims = append(shape.Dims, onnx.DimensionProto{DimValue: d})
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// Float is a float32 Value.
func Float(name string, dims ...int64) onnx.ValueInfoProto {
	return Value(name, onnx.TensorProtoFloat, dims...)
}

// Node builds a default-domain node.
func Node(opType string, inputs, outputs []string, attrs ...onnx.AttributeProto) onnx.NodeProto {
	return onnx.NodeProto{
		Name:       opType + "_" + outputs[0],
		OpType:     opType,
		Inputs:     inputs,
		Outputs:    outputs,
		Attributes: attrs,
	}
}

// AttrInt builds an INT attribute.
func AttrInt(name string, v int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoInt, I: v}
}

// AttrFloat builds a FLOAT attribute.
func AttrFloat(name string, v float32) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoFloat, F: v}
}

// AttrInts builds an INTS attribute.
func AttrInts(name string, v ...int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoInts, Ints: v}
}

// AttrTensor builds a TENSOR attribute.
func AttrTensor(tb testing.TB, name string, t *tensor.Tensor) onnx.AttributeProto {
	tb.Helper()
	p := Initializer(tb, name, t)
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoTensor, T: &p}
}

// Initializer converts t to a named TensorProto.
func Initializer(tb testing.TB, name string, t *tensor.Tensor) onnx.TensorProto {
	tb.Helper()
	p, err := onnx.TensorToProto(name, t)
	if err != nil {
		tb.Fatalf("TensorToProto(%s): %v", name, err)
	}
	return *p
}

// AddModel returns Z = X + Y over float32 [2, 3] tensors.
func AddModel() *onnx.ModelProto {
	return Model(&onnx.GraphProto{
		Name:    "add",
		Nodes:   []onnx.NodeProto{Node("Add", []string{"X", "Y"}, []string{"Z"})},
		Inputs:  []onnx.ValueInfoProto{Float("X", 2, 3), Float("Y", 2, 3)},
		Outputs: []onnx.ValueInfoProto{Float("Z", 2, 3)},
	})
}

// ReluModel returns Y = Relu(X) over float32 [N, 4] tensors.
func ReluModel() *onnx.ModelProto {
	return Model(&onnx.GraphProto{
		Name:    "relu",
		Nodes:   []onnx.NodeProto{Node("Relu", []string{"X"}, []string{"Y"})},
		Inputs:  []onnx.ValueInfoProto{Float("X", -1, 4)},
		Outputs: []onnx.ValueInfoProto{Float("Y", -1, 4)},
	})
}

// LinearModel returns Y = Relu(X·W + B) with W [3, 2] and B [2] initializers,
// and a second output H = X·W that is also consumed by the Add node.
func LinearModel(tb testing.TB) *onnx.ModelProto {
	tb.Helper()
	w := tensor.MustNew(tensor.Shape{3, 2}, []float32{1, 0, 0, 1, 1, 1})
	b := tensor.FromSlice[float32](0.5, -10)
	return Model(&onnx.GraphProto{
		Name: "linear",
		Nodes: []onnx.NodeProto{
			Node("MatMul", []string{"X", "W"}, []string{"H"}),
			Node("Add", []string{"H", "B"}, []string{"S"}),
			Node("Relu", []string{"S"}, []string{"Y"}),
		},
		Initializers: []onnx.TensorProto{Initializer(tb, "W", w), Initializer(tb, "B", b)},
		Inputs:       []onnx.ValueInfoProto{Float("X", -1, 3)},
		Outputs:      []onnx.ValueInfoProto{Float("Y", -1, 2), Float("H", -1, 2)},
	})
}

// Bytes marshals m, failing the test on error.
func Bytes(tb testing.TB, m *onnx.ModelProto) []byte {
	tb.Helper()
	data, err := onnx.Marshal(m)
	if err != nil {
		tb.Fatalf("Marshal: %v", err)
	}
	return data
}
