package operators

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	essentialOps := []string{
		"Add", "Sub", "Mul", "Div", "Pow", "Neg", "Abs", "Sqrt", "Exp", "Log",
		"Reciprocal", "Floor", "Ceil", "Relu", "LeakyRelu", "Sigmoid", "Tanh",
		"Softmax", "LogSoftmax", "Clip", "MatMul", "Gemm", "Identity", "Dropout",
		"Constant", "Cast", "Shape", "Reshape", "Flatten", "Transpose", "Squeeze",
		"Unsqueeze", "Concat", "ReduceSum", "ReduceMean", "ReduceMax", "Equal",
		"Greater", "Less", "Where",
	}
	for _, op := range essentialOps {
		_, ok := r.Get(op)
		assert.True(t, ok, "operator %s should be registered", op)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	_, ok := NewRegistry().Get("UnknownOp")
	assert.False(t, ok)
}

func TestSupportedOpsSorted(t *testing.T) {
	ops := NewRegistry().SupportedOps()
	assert.GreaterOrEqual(t, len(ops), 40)
	assert.True(t, slices.IsSorted(ops))
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()
	r.Register("MyCustomOp", func(_ *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		return inputs, nil
	})

	x := tensor.FromSlice[float32](1)
	out, err := r.Execute(&Context{}, &Node{OpType: "MyCustomOp"}, []*tensor.Tensor{x})
	require.NoError(t, err)
	assert.Same(t, x, out[0])
}

func TestExecuteUnsupported(t *testing.T) {
	_, err := NewRegistry().Execute(&Context{}, &Node{OpType: "Conv"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operator: Conv")
}
