package operators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

func intAttr(name string, v int64) Attribute {
	return Attribute{Name: name, Type: onnx.AttributeProtoInt, I: v}
}

func intsAttr(name string, v ...int64) Attribute {
	return Attribute{Name: name, Type: onnx.AttributeProtoInts, Ints: v}
}

func floatAttr(name string, v float32) Attribute {
	return Attribute{Name: name, Type: onnx.AttributeProtoFloat, F: v}
}

func exec(opset int64, op string, inputs []*tensor.Tensor, attrs ...Attribute) ([]*tensor.Tensor, error) {
	node := &Node{OpType: op, Outputs: []string{"y"}, Attributes: attrs}
	return NewRegistry().Execute(&Context{Opset: opset}, node, inputs)
}

// run executes a single-output operator at opset 13.
func run(t *testing.T, op string, inputs []*tensor.Tensor, attrs ...Attribute) *tensor.Tensor {
	t.Helper()
	out, err := exec(13, op, inputs, attrs...)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func in(ts ...*tensor.Tensor) []*tensor.Tensor { return ts }

func f32(shape tensor.Shape, vals ...float32) *tensor.Tensor { return tensor.MustNew(shape, vals) }

func i64(shape tensor.Shape, vals ...int64) *tensor.Tensor { return tensor.MustNew(shape, vals) }

func assertTensor(t *testing.T, want []float64, shape tensor.Shape, got *tensor.Tensor) {
	t.Helper()
	assert.Equal(t, shape, got.Shape())
	assert.InDeltaSlice(t, want, got.Float64s(), 1e-5)
}

func TestArithmeticBroadcast(t *testing.T) {
	x := f32(tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	row := f32(tensor.Shape{3}, 10, 20, 30)
	col := f32(tensor.Shape{2, 1}, 2, 4)

	assertTensor(t, []float64{11, 22, 33, 14, 25, 36}, tensor.Shape{2, 3}, run(t, "Add", in(x, row)))
	assertTensor(t, []float64{-9, -18, -27, -6, -15, -24}, tensor.Shape{2, 3}, run(t, "Sub", in(x, row)))
	assertTensor(t, []float64{2, 4, 6, 16, 20, 24}, tensor.Shape{2, 3}, run(t, "Mul", in(x, col)))
	assertTensor(t, []float64{0.5, 1, 1.5, 1, 1.25, 1.5}, tensor.Shape{2, 3}, run(t, "Div", in(x, col)))

	_, err := exec(13, "Add", in(x, f32(tensor.Shape{2}, 1, 2)))
	require.Error(t, err)
	_, err = exec(13, "Add", in(x, i64(tensor.Shape{3}, 1, 2, 3)))
	require.Error(t, err)
}

func TestIntegerDivision(t *testing.T) {
	out := run(t, "Div", in(tensor.FromSlice[int64](7, -7), tensor.FromSlice[int64](2, 2)))
	vals, err := tensor.Data[int64](out)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, -3}, vals)

	_, err = exec(13, "Div", in(tensor.FromSlice[int64](1), tensor.FromSlice[int64](0)))
	require.ErrorContains(t, err, "division by zero")
}

func TestPowMixedTypes(t *testing.T) {
	out := run(t, "Pow", in(tensor.FromSlice[float32](2, 3), tensor.Scalar(int64(2))))
	assert.Equal(t, tensor.Float32, out.DType())
	assertTensor(t, []float64{4, 9}, tensor.Shape{2}, out)
}

func TestUnaryOps(t *testing.T) {
	x := tensor.FromSlice[float32](-2, 0, 4)
	assertTensor(t, []float64{2, 0, -4}, tensor.Shape{3}, run(t, "Neg", in(x)))
	assertTensor(t, []float64{2, 0, 4}, tensor.Shape{3}, run(t, "Abs", in(x)))
	assertTensor(t, []float64{0, 0, 4}, tensor.Shape{3}, run(t, "Relu", in(x)))
	assertTensor(t, []float64{-0.5, math.Inf(1), 0.25}, tensor.Shape{3}, run(t, "Reciprocal", in(x)))
	assertTensor(t, []float64{2}, tensor.Shape{1}, run(t, "Sqrt", in(tensor.FromSlice[float64](4))))
	assertTensor(t, []float64{1, -2}, tensor.Shape{2}, run(t, "Floor", in(tensor.FromSlice[float32](1.5, -1.5))))
	assertTensor(t, []float64{2, -1}, tensor.Shape{2}, run(t, "Ceil", in(tensor.FromSlice[float32](1.5, -1.5))))
	assertTensor(t, []float64{0, 1}, tensor.Shape{2}, run(t, "Log", in(tensor.FromSlice[float32](1, float32(math.E)))))
	assertTensor(t, []float64{1}, tensor.Shape{1}, run(t, "Exp", in(tensor.FromSlice[float32](0))))

	ints := run(t, "Abs", in(tensor.FromSlice[int32](-3, 3)))
	assert.Equal(t, tensor.Int32, ints.DType())
	assertTensor(t, []float64{3, 3}, tensor.Shape{2}, ints)

	_, err := exec(13, "Sqrt", in(tensor.FromSlice[int64](4)))
	require.ErrorContains(t, err, "expected float")
	_, err = exec(13, "Sqrt", in(nil))
	require.ErrorContains(t, err, "required input 0 is missing")
}

func TestActivations(t *testing.T) {
	x := tensor.FromSlice[float32](-1, 0, 2)
	assertTensor(t, []float64{-0.1, 0, 2}, tensor.Shape{3}, run(t, "LeakyRelu", in(x), floatAttr("alpha", 0.1)))
	assertTensor(t, []float64{-0.01, 0, 2}, tensor.Shape{3}, run(t, "LeakyRelu", in(x)))
	assertTensor(t, []float64{0.26894142, 0.5, 0.88079708}, tensor.Shape{3}, run(t, "Sigmoid", in(x)))
	assertTensor(t, []float64{math.Tanh(-1), 0, math.Tanh(2)}, tensor.Shape{3}, run(t, "Tanh", in(x)))
	assertTensor(t, []float64{-0.5, 0, 2}, tensor.Shape{3}, run(t, "PRelu", in(x, tensor.Scalar(float32(0.5)))))
}

func TestSoftmax(t *testing.T) {
	x := f32(tensor.Shape{2, 3}, 1, 2, 3, 1, 1, 1)
	want := []float64{0.09003057, 0.24472847, 0.66524096, 1.0 / 3, 1.0 / 3, 1.0 / 3}
	assertTensor(t, want, tensor.Shape{2, 3}, run(t, "Softmax", in(x)))

	logs := make([]float64, len(want))
	for i, v := range want {
		logs[i] = math.Log(v)
	}
	assertTensor(t, logs, tensor.Shape{2, 3}, run(t, "LogSoftmax", in(x)))
}

func TestSoftmaxAxisSemanticsByOpset(t *testing.T) {
	ones := f32(tensor.Shape{1, 2, 2}, 1, 1, 1, 1)

	// Opset 13 normalizes along axis 1 only.
	assertTensor(t, []float64{0.5, 0.5, 0.5, 0.5}, tensor.Shape{1, 2, 2},
		run(t, "Softmax", in(ones), intAttr("axis", 1)))

	// Earlier opsets flatten from axis 1 on, normalizing over four values.
	out, err := exec(11, "Softmax", in(ones), intAttr("axis", 1))
	require.NoError(t, err)
	assertTensor(t, []float64{0.25, 0.25, 0.25, 0.25}, tensor.Shape{1, 2, 2}, out[0])
}

func TestClip(t *testing.T) {
	x := tensor.FromSlice[float32](-5, 0, 5)
	assertTensor(t, []float64{-1, 0, 2}, tensor.Shape{3}, run(t, "Clip",
		in(x, tensor.Scalar(float32(-1)), tensor.Scalar(float32(2)))))
	assertTensor(t, []float64{-5, 0, 2}, tensor.Shape{3}, run(t, "Clip", in(x, nil, tensor.Scalar(float32(2)))))
	assertTensor(t, []float64{0, 0, 5}, tensor.Shape{3}, run(t, "Clip", in(x), floatAttr("min", 0)))

	ints := run(t, "Clip", in(tensor.FromSlice[int64](-5, 5), tensor.Scalar(int64(0))))
	assert.Equal(t, tensor.Int64, ints.DType())
	assertTensor(t, []float64{0, 5}, tensor.Shape{2}, ints)
}

func TestMatMul(t *testing.T) {
	a := f32(tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := f32(tensor.Shape{2, 2}, 5, 6, 7, 8)
	assertTensor(t, []float64{19, 22, 43, 50}, tensor.Shape{2, 2}, run(t, "MatMul", in(a, b)))

	ai := i64(tensor.Shape{2, 2}, 1, 2, 3, 4)
	bi := i64(tensor.Shape{2, 2}, 5, 6, 7, 8)
	out := run(t, "MatMul", in(ai, bi))
	assert.Equal(t, tensor.Int64, out.DType())
	assertTensor(t, []float64{19, 22, 43, 50}, tensor.Shape{2, 2}, out)

	_, err := exec(13, "MatMul", in(a, f32(tensor.Shape{3, 1}, 1, 2, 3)))
	require.ErrorContains(t, err, "shape mismatch")
}

func TestMatMulVectorsAndBatches(t *testing.T) {
	batch := tensor.MustNew(tensor.Shape{2, 1, 3}, []float64{1, 2, 3, 4, 5, 6})
	vec := tensor.FromSlice[float64](1, 1, 1)
	assertTensor(t, []float64{6, 15}, tensor.Shape{2, 1}, run(t, "MatMul", in(batch, vec)))

	// 1-D @ 1-D is a dot product with a scalar result.
	assertTensor(t, []float64{3}, tensor.Shape{}, run(t, "MatMul", in(vec, vec)))

	// A [3] row vector broadcast against a batch of [3, 2] matrices.
	mats := tensor.MustNew(tensor.Shape{2, 3, 2}, []float32{1, 0, 0, 1, 0, 0, 2, 0, 0, 2, 0, 0})
	row := tensor.FromSlice[float32](1, 2, 3)
	assertTensor(t, []float64{1, 2, 2, 4}, tensor.Shape{2, 2}, run(t, "MatMul", in(row, mats)))
}

func TestGemm(t *testing.T) {
	a := f32(tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := f32(tensor.Shape{2, 3}, 1, 0, 0, 0, 1, 0)
	c := f32(tensor.Shape{2}, 10, 20)

	out := run(t, "Gemm", in(a, b, c), intAttr("transB", 1))
	assertTensor(t, []float64{11, 22, 14, 25}, tensor.Shape{2, 2}, out)

	out = run(t, "Gemm", in(a, b, c), intAttr("transB", 1), floatAttr("alpha", 2), floatAttr("beta", 0.5))
	assertTensor(t, []float64{7, 14, 13, 20}, tensor.Shape{2, 2}, out)

	// Without C, and with A transposed.
	at := tensor.MustNew(tensor.Shape{3, 1}, []float64{1, 2, 3})
	bt := tensor.MustNew(tensor.Shape{3, 1}, []float64{4, 5, 6})
	out = run(t, "Gemm", in(at, bt), intAttr("transA", 1))
	assertTensor(t, []float64{32}, tensor.Shape{1, 1}, out)

	_, err := exec(13, "Gemm", in(a, b))
	require.ErrorContains(t, err, "shape mismatch")
}

func TestShapeOps(t *testing.T) {
	x := tensor.MustNew(tensor.Shape{2, 3, 4}, make([]float32, 24))

	assertTensor(t, []float64{2, 3, 4}, tensor.Shape{3}, run(t, "Shape", in(x)))
	assertTensor(t, []float64{3, 4}, tensor.Shape{2}, run(t, "Shape", in(x), intAttr("start", 1)))
	assertTensor(t, []float64{2}, tensor.Shape{1}, run(t, "Shape", in(x), intAttr("end", -2)))

	assert.Equal(t, tensor.Shape{2, 12}, run(t, "Reshape", in(x, tensor.FromSlice[int64](0, -1))).Shape())
	assert.Equal(t, tensor.Shape{6, 4}, run(t, "Flatten", in(x), intAttr("axis", 2)).Shape())
	assert.Equal(t, tensor.Shape{1, 24}, run(t, "Flatten", in(x), intAttr("axis", 0)).Shape())
	assert.Equal(t, tensor.Shape{2, 12}, run(t, "Flatten", in(x)).Shape())

	_, err := exec(13, "Reshape", in(x, tensor.FromSlice[int64](5, -1)))
	require.Error(t, err)
	_, err = exec(13, "Reshape", in(x, tensor.FromSlice[int64](-1, -1)))
	require.Error(t, err)
}

func TestTranspose(t *testing.T) {
	x := i64(tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	assertTensor(t, []float64{1, 4, 2, 5, 3, 6}, tensor.Shape{3, 2}, run(t, "Transpose", in(x)))

	y := i64(tensor.Shape{1, 2, 3}, 1, 2, 3, 4, 5, 6)
	out := run(t, "Transpose", in(y), intsAttr("perm", 1, 0, 2))
	assertTensor(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 1, 3}, out)

	_, err := exec(13, "Transpose", in(y), intsAttr("perm", 0, 0, 1))
	require.Error(t, err)
}

func TestSqueezeUnsqueeze(t *testing.T) {
	x := tensor.MustNew(tensor.Shape{1, 3, 1}, []float32{1, 2, 3})
	assert.Equal(t, tensor.Shape{3}, run(t, "Squeeze", in(x)).Shape())
	assert.Equal(t, tensor.Shape{3, 1}, run(t, "Squeeze", in(x, tensor.FromSlice[int64](0))).Shape())

	out, err := exec(11, "Squeeze", in(x), intsAttr("axes", -1))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3}, out[0].Shape())

	_, err = exec(13, "Squeeze", in(x, tensor.FromSlice[int64](1)))
	require.ErrorContains(t, err, "has size 3")

	y := f32(tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	assert.Equal(t, tensor.Shape{1, 2, 3, 1}, run(t, "Unsqueeze", in(y, tensor.FromSlice[int64](0, 3))).Shape())
	assert.Equal(t, tensor.Shape{2, 3, 1}, run(t, "Unsqueeze", in(y, tensor.FromSlice[int64](-1))).Shape())

	_, err = exec(13, "Unsqueeze", in(y))
	require.ErrorContains(t, err, "axes are required")
}

func TestConcat(t *testing.T) {
	a := i64(tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := i64(tensor.Shape{2, 1}, 5, 6)
	assertTensor(t, []float64{1, 2, 5, 3, 4, 6}, tensor.Shape{2, 3}, run(t, "Concat", in(a, b), intAttr("axis", 1)))

	c := i64(tensor.Shape{1, 2}, 7, 8)
	assertTensor(t, []float64{1, 2, 3, 4, 7, 8}, tensor.Shape{3, 2}, run(t, "Concat", in(a, c), intAttr("axis", -2)))

	_, err := exec(13, "Concat", in(a, b), intAttr("axis", 0))
	require.ErrorContains(t, err, "shape mismatch")
	_, err = exec(13, "Concat", in(a, b))
	require.ErrorContains(t, err, "axis attribute is required")
}

func TestGatherAndExpand(t *testing.T) {
	x := f32(tensor.Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	assertTensor(t, []float64{5, 6, 1, 2}, tensor.Shape{2, 2}, run(t, "Gather", in(x, tensor.FromSlice[int64](-1, 0))))
	assertTensor(t, []float64{2, 4, 6}, tensor.Shape{3}, run(t, "Gather", in(x, tensor.Scalar(int64(1))), intAttr("axis", 1)))

	_, err := exec(13, "Gather", in(x, tensor.FromSlice[int64](3)))
	require.ErrorContains(t, err, "out of range")

	col := f32(tensor.Shape{2, 1}, 1, 2)
	assertTensor(t, []float64{1, 1, 1, 2, 2, 2}, tensor.Shape{2, 3}, run(t, "Expand", in(col, tensor.FromSlice[int64](1, 3))))
}

func TestReductions(t *testing.T) {
	x := f32(tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	assertTensor(t, []float64{6, 15}, tensor.Shape{2}, run(t, "ReduceSum",
		in(x, tensor.FromSlice[int64](1)), intAttr("keepdims", 0)))
	assertTensor(t, []float64{21}, tensor.Shape{1, 1}, run(t, "ReduceSum", in(x)))
	assertTensor(t, []float64{2.5, 3.5, 4.5}, tensor.Shape{1, 3}, run(t, "ReduceMean", in(x), intsAttr("axes", 0)))
	assertTensor(t, []float64{6}, tensor.Shape{}, run(t, "ReduceMax", in(x), intAttr("keepdims", 0)))
	assertTensor(t, []float64{3, 6}, tensor.Shape{2, 1}, run(t, "ReduceMax", in(x), intsAttr("axes", -1)))

	same := run(t, "ReduceSum", in(x, tensor.FromSlice[int64]()), intAttr("noop_with_empty_axes", 1))
	assert.Same(t, x, same)
}

func TestComparisonAndWhere(t *testing.T) {
	a := tensor.FromSlice[int64](1, 5, 3)
	b := tensor.Scalar(int64(3))

	eq := run(t, "Equal", in(a, b))
	assert.Equal(t, tensor.Bool, eq.DType())
	assertTensor(t, []float64{0, 0, 1}, tensor.Shape{3}, eq)
	assertTensor(t, []float64{0, 1, 0}, tensor.Shape{3}, run(t, "Greater", in(a, b)))
	assertTensor(t, []float64{1, 0, 0}, tensor.Shape{3}, run(t, "Less", in(a, b)))
	assertTensor(t, []float64{1, 1, 0}, tensor.Shape{3}, run(t, "Not", in(eq)))

	cond := tensor.FromSlice(true, false, true)
	x := f32(tensor.Shape{2, 1}, 1, 2)
	y := tensor.Scalar(float32(-1))
	assertTensor(t, []float64{1, -1, 1, 2, -1, 2}, tensor.Shape{2, 3}, run(t, "Where", in(cond, x, y)))

	_, err := exec(13, "Where", in(a, x, y))
	require.ErrorContains(t, err, "condition")
}

func TestUtilityOps(t *testing.T) {
	x := tensor.FromSlice[float32](1.7, -2.2)

	assert.Same(t, x, run(t, "Identity", in(x)))

	cast := run(t, "Cast", in(x), intAttr("to", onnx.TensorProtoInt64))
	assert.Equal(t, tensor.Int64, cast.DType())
	assertTensor(t, []float64{1, -2}, tensor.Shape{2}, cast)
	_, err := exec(13, "Cast", in(x), intAttr("to", onnx.TensorProtoString))
	require.ErrorContains(t, err, "STRING")

	value := tensor.FromSlice[int64](4, 2)
	c := run(t, "Constant", nil, Attribute{Name: "value", Type: onnx.AttributeProtoTensor, T: value})
	assert.Same(t, value, c)
	assert.Equal(t, tensor.Shape{}, run(t, "Constant", nil, floatAttr("value_float", 3)).Shape())
	assertTensor(t, []float64{1, 2}, tensor.Shape{2}, run(t, "Constant", nil, intsAttr("value_ints", 1, 2)))

	filled := run(t, "ConstantOfShape", in(tensor.FromSlice[int64](2, 2)),
		Attribute{Name: "value", Type: onnx.AttributeProtoTensor, T: tensor.FromSlice[int64](7)})
	assertTensor(t, []float64{7, 7, 7, 7}, tensor.Shape{2, 2}, filled)

	assertTensor(t, []float64{2}, tensor.Shape{}, run(t, "Size", in(x)))
}

func TestDropoutMask(t *testing.T) {
	x := tensor.FromSlice[float32](1, 2)
	node := &Node{OpType: "Dropout", Outputs: []string{"y", "mask"}}
	out, err := NewRegistry().Execute(&Context{Opset: 13}, node, in(x))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Same(t, x, out[0])
	mask, err := tensor.Data[bool](out[1])
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, mask)

	assert.Len(t, run(t, "Dropout", in(x)).Shape(), 1)
}

func TestLargeInputsSplitAcrossWorkers(t *testing.T) {
	const rows, cols = 64, 1024
	x := make([]int64, rows*cols)
	for i := range x {
		x[i] = int64(i)
	}
	bias := make([]int64, cols)
	for i := range bias {
		bias[i] = -int64(i)
	}
	sum := run(t, "Add", in(i64(tensor.Shape{rows, cols}, x...), i64(tensor.Shape{cols}, bias...)))
	got, err := tensor.Data[int64](sum)
	require.NoError(t, err)
	for i, v := range got {
		if v != int64(i/cols*cols) {
			t.Fatalf("element %d = %d, want %d", i, v, i/cols*cols)
		}
	}

	// Eight independent 2x2 products against the identity.
	const batch = 8
	a := make([]float32, batch*4)
	for i := range a {
		a[i] = float32(i)
	}
	eye := f32(tensor.Shape{2, 2}, 1, 0, 0, 1)
	prod := run(t, "MatMul", in(f32(tensor.Shape{batch, 2, 2}, a...), eye))
	want := make([]float64, len(a))
	for i, v := range a {
		want[i] = float64(v)
	}
	assertTensor(t, want, tensor.Shape{batch, 2, 2}, prod)
}

func TestShapeInputsRejectNegativeDims(t *testing.T) {
	x := f32(tensor.Shape{1}, 1)

	var (
		out []*tensor.Tensor
		err error
	)
	require.NotPanics(t, func() { out, err = exec(13, "Expand", in(x, i64(tensor.Shape{1}, -3))) })
	require.ErrorContains(t, err, "Expand")
	assert.Nil(t, out)

	require.NotPanics(t, func() { _, err = exec(13, "Expand", in(x, i64(tensor.Shape{2}, 2, -1))) })
	require.Error(t, err)

	require.NotPanics(t, func() { _, err = exec(13, "ConstantOfShape", in(i64(tensor.Shape{1}, -2))) })
	require.ErrorContains(t, err, "ConstantOfShape")

	huge := int64(6148914691236517206)
	require.NotPanics(t, func() { _, err = exec(13, "ConstantOfShape", in(i64(tensor.Shape{2}, 3, huge))) })
	require.ErrorIs(t, err, tensor.ErrShapeTooLarge)
}

func TestGemmRejectsBiasOfHigherRank(t *testing.T) {
	a := f32(tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := f32(tensor.Shape{2, 2}, 1, 0, 0, 1)
	c := f32(tensor.Shape{2, 2, 2}, 1, 1, 1, 1, 1, 1, 1, 1)

	var err error
	require.NotPanics(t, func() { _, err = exec(13, "Gemm", in(a, b, c)) })
	require.ErrorContains(t, err, "cannot broadcast to [2 2]")

	// Bidirectional broadcasting would accept [2, 1] against [1, 2]; Gemm may not.
	_, err = exec(13, "Gemm", in(f32(tensor.Shape{2, 1}, 1, 2), f32(tensor.Shape{1, 1}, 1), f32(tensor.Shape{1, 2}, 1, 1)))
	require.Error(t, err)
}
