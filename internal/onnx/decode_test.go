package onnx

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildSimpleAddModel hand-encodes Z = X + Y so decoding is tested
// independently of Marshal.
func buildSimpleAddModel() []byte {
	node := appendTestString(nil, 1, "X")
	node = appendTestString(node, 1, "Y")
	node = appendTestString(node, 2, "Z")
	node = appendTestString(node, 4, "Add")

	graph := appendTestBytes(nil, 1, node)
	graph = appendTestString(graph, 2, "simple_add")
	graph = appendTestBytes(graph, 11, buildValueInfo("X", []int64{-1, 784}))
	graph = appendTestBytes(graph, 11, buildValueInfo("Y", []int64{-1, 784}))
	graph = appendTestBytes(graph, 12, buildValueInfo("Z", []int64{-1, 784}))

	opset := appendTestString(nil, 1, "")
	opset = protowire.AppendTag(opset, 2, protowire.VarintType)
	opset = protowire.AppendVarint(opset, 13)

	model := protowire.AppendTag(nil, 1, protowire.VarintType)
	model = protowire.AppendVarint(model, 7)
	model = appendTestBytes(model, 8, opset)
	model = appendTestBytes(model, 7, graph)
	return model
}

func buildValueInfo(name string, shape []int64) []byte {
	var dims []byte
	for _, d := range shape {
		var dim []byte
		if d > 0 {
			dim = protowire.AppendTag(dim, 1, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		} else {
			dim = appendTestString(dim, 2, "batch")
		}
		dims = appendTestBytes(dims, 1, dim)
	}
	tensorType := protowire.AppendTag(nil, 1, protowire.VarintType)
	tensorType = protowire.AppendVarint(tensorType, TensorProtoFloat)
	tensorType = appendTestBytes(tensorType, 2, dims)

	typ := appendTestBytes(nil, 1, tensorType)
	vi := appendTestString(nil, 1, name)
	return appendTestBytes(vi, 2, typ)
}

func appendTestString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTestBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func TestParseSimpleAdd(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	require.NoError(t, err)

	assert.Equal(t, int64(7), model.IRVersion)
	assert.Equal(t, int64(13), model.OpsetVersion())
	require.NotNil(t, model.Graph)
	assert.Equal(t, "simple_add", model.Graph.Name)

	require.Len(t, model.Graph.Nodes, 1)
	node := model.Graph.Nodes[0]
	assert.Equal(t, "Add", node.OpType)
	assert.Equal(t, []string{"X", "Y"}, node.Inputs)
	assert.Equal(t, []string{"Z"}, node.Outputs)
}

func TestParseInputOutput(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	require.NoError(t, err)

	require.Len(t, model.Graph.Inputs, 2)
	require.Len(t, model.Graph.Outputs, 1)

	input := model.Graph.Inputs[0]
	assert.Equal(t, "X", input.Name)
	require.NotNil(t, input.Type)
	require.NotNil(t, input.Type.TensorType)
	assert.Equal(t, int32(TensorProtoFloat), input.Type.TensorType.ElemType)

	dims := input.Type.TensorType.Shape.Dims
	require.Len(t, dims, 2)
	assert.Equal(t, "batch", dims[0].DimParam)
	assert.Equal(t, int64(784), dims[1].DimValue)
}

func TestParseSkipsUnknownFields(t *testing.T) {
	data := buildSimpleAddModel()
	// training_info (field 20) and an unknown fixed64 field.
	data = appendTestBytes(data, 20, []byte{0x08, 0x01})
	data = protowire.AppendTag(data, 99, protowire.Fixed64Type)
	data = protowire.AppendFixed64(data, 42)

	model, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, model.Graph.Nodes, 1)
}

func TestParseMalformed(t *testing.T) {
	tests := map[string][]byte{
		"truncated varint":   {0x08},
		"truncated bytes":    {0x3a, 0x10, 0x01},
		"invalid wire type":  {0x0f},
		"graph as varint":    {0x38, 0x01},
		"not protobuf":       []byte("this is not an onnx model"),
		"truncated in graph": append([]byte{0x3a, 0x03}, 0x0a, 0x05, 0x01),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseEmptyIsEmptyModel(t *testing.T) {
	model, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, model.Graph)
	assert.Zero(t, model.IRVersion)
}

func TestParseTensorPackedAndUnpacked(t *testing.T) {
	// dims unpacked, float_data packed.
	var data []byte
	for _, d := range []uint64{2, 2} {
		data = protowire.AppendTag(data, 1, protowire.VarintType)
		data = protowire.AppendVarint(data, d)
	}
	data = protowire.AppendTag(data, 2, protowire.VarintType)
	data = protowire.AppendVarint(data, TensorProtoFloat)
	var packed []byte
	for _, v := range []float32{1, 2, 3, 4} {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	data = appendTestBytes(data, 4, packed)
	data = appendTestString(data, 8, "weights")

	tp, err := ParseTensor(data)
	require.NoError(t, err)
	assert.Equal(t, "weights", tp.Name)
	assert.Equal(t, []int64{2, 2}, tp.Dims)
	assert.Equal(t, []float32{1, 2, 3, 4}, tp.FloatData)

	// Same dims packed, float_data unpacked.
	var dims []byte
	dims = protowire.AppendVarint(dims, 2)
	dims = protowire.AppendVarint(dims, 2)
	data = appendTestBytes(nil, 1, dims)
	for _, v := range []float32{1, 2, 3, 4} {
		data = protowire.AppendTag(data, 4, protowire.Fixed32Type)
		data = protowire.AppendFixed32(data, math.Float32bits(v))
	}

	tp, err = ParseTensor(data)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2}, tp.Dims)
	assert.Equal(t, []float32{1, 2, 3, 4}, tp.FloatData)
}

func TestParseFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.onnx")
	require.NoError(t, os.WriteFile(tmpFile, buildSimpleAddModel(), 0o600))

	model, err := ParseFile(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, model.Graph)
	assert.Len(t, model.Graph.Nodes, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.onnx"))
	require.Error(t, err)
}
