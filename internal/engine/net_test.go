package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxbackend/internal/engine"
	"github.com/born-ml/onnxbackend/internal/engine/operators"
	"github.com/born-ml/onnxbackend/internal/logutil"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/onnx/onnxtest"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

func load(t *testing.T, m *onnx.ModelProto, opts ...engine.Option) *engine.Net {
	t.Helper()
	opts = append([]engine.Option{engine.WithLogger(logutil.Discard())}, opts...)
	net, err := engine.LoadNetwork(engine.FormatONNX, onnxtest.Bytes(t, m), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = net.Close() })
	return net
}

func TestAddModel(t *testing.T) {
	net := load(t, onnxtest.AddModel())
	assert.Equal(t, []string{"X", "Y"}, net.InputNames())
	assert.Equal(t, []string{"Z"}, net.UnconnectedOutputNames())
	assert.Equal(t, int64(onnxtest.DefaultOpset), net.OpsetVersion())

	x := tensor.MustNew(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	y := tensor.MustNew(tensor.Shape{2, 3}, []float32{10, 20, 30, 40, 50, 60})

	require.NoError(t, net.SetInputNames([]string{"0", "1"}))
	require.NoError(t, net.SetInput(x, "0"))
	require.NoError(t, net.SetInput(y, "1"))

	outs, err := net.ForwardAndRetrieve(net.UnconnectedOutputNames())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	z, err := tensor.Data[float32](outs[0])
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44, 55, 66}, z)
}

func TestLinearModelOutputs(t *testing.T) {
	net := load(t, onnxtest.LinearModel(t))
	assert.Equal(t, []string{"X"}, net.InputNames())
	assert.Equal(t, []string{"Y", "H"}, net.OutputNames())
	// H feeds the Add node, so only Y is a terminal output.
	assert.Equal(t, []string{"Y"}, net.UnconnectedOutputNames())

	x := tensor.MustNew(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, net.SetInput(x, "X"))

	outs, err := net.ForwardAndRetrieve([]string{"Y", "H", "S"})
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, []float64{4.5, 0, 10.5, 1}, outs[0].Float64s())
	assert.Equal(t, []float64{4, 5, 10, 11}, outs[1].Float64s())
	assert.Equal(t, []float64{4.5, -5, 10.5, 1}, outs[2].Float64s())

	_, err = net.ForwardAndRetrieve([]string{"nope"})
	require.ErrorContains(t, err, `unknown output "nope"`)
}

func TestNodesAreSorted(t *testing.T) {
	m := onnxtest.LinearModel(t)
	nodes := m.Graph.Nodes
	nodes[0], nodes[2] = nodes[2], nodes[0]
	net := load(t, m)

	outs, err := net.Forward(map[string]*tensor.Tensor{
		"X": tensor.MustNew(tensor.Shape{1, 3}, []float32{1, 1, 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 0}, outs["Y"].Float64s())
	assert.Equal(t, []float64{2, 2}, outs["H"].Float64s())
}

func TestCycleIsRejected(t *testing.T) {
	m := onnxtest.Model(&onnx.GraphProto{
		Name: "cycle",
		Nodes: []onnx.NodeProto{
			onnxtest.Node("Add", []string{"X", "B"}, []string{"A"}),
			onnxtest.Node("Relu", []string{"A"}, []string{"B"}),
		},
		Inputs:  []onnx.ValueInfoProto{onnxtest.Float("X", 1)},
		Outputs: []onnx.ValueInfoProto{onnxtest.Float("B", 1)},
	})
	_, err := engine.LoadNetwork(engine.FormatONNX, onnxtest.Bytes(t, m))
	require.ErrorIs(t, err, engine.ErrCycle)
}

func TestLoadErrors(t *testing.T) {
	_, err := engine.LoadNetwork("tensorflow", onnxtest.Bytes(t, onnxtest.AddModel()))
	require.ErrorIs(t, err, engine.ErrUnsupportedFormat)

	_, err = engine.LoadNetwork(engine.FormatONNX, []byte{0xff, 0xff})
	require.ErrorIs(t, err, onnx.ErrMalformed)

	noGraph := onnxtest.AddModel()
	noGraph.Graph = nil
	_, err = engine.LoadNetwork(engine.FormatONNX, onnxtest.Bytes(t, noGraph))
	require.ErrorContains(t, err, "no graph")
}

func TestStrictOps(t *testing.T) {
	m := onnxtest.Model(&onnx.GraphProto{
		Name:    "conv",
		Nodes:   []onnx.NodeProto{onnxtest.Node("Conv", []string{"X"}, []string{"Y"})},
		Inputs:  []onnx.ValueInfoProto{onnxtest.Float("X", 1)},
		Outputs: []onnx.ValueInfoProto{onnxtest.Float("Y", 1)},
	})
	_, err := engine.LoadNetwork(engine.FormatONNX, onnxtest.Bytes(t, m))
	require.ErrorIs(t, err, engine.ErrUnsupportedOperator)
	assert.Contains(t, err.Error(), "Conv")

	net := load(t, m, engine.WithStrictOps(false))
	require.NoError(t, net.SetInput(tensor.FromSlice[float32](1), "X"))
	_, err = net.ForwardAndRetrieve([]string{"Y"})
	require.ErrorContains(t, err, "unsupported operator: Conv")
}

func TestCustomRegistry(t *testing.T) {
	r := operators.NewRegistry()
	r.Register("Conv", func(_ *operators.Context, _ *operators.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		return in, nil
	})
	m := onnxtest.Model(&onnx.GraphProto{
		Name:    "conv",
		Nodes:   []onnx.NodeProto{onnxtest.Node("Conv", []string{"X"}, []string{"Y"})},
		Inputs:  []onnx.ValueInfoProto{onnxtest.Float("X", 1)},
		Outputs: []onnx.ValueInfoProto{onnxtest.Float("Y", 1)},
	})
	net := load(t, m, engine.WithRegistry(r))

	x := tensor.FromSlice[float32](3)
	outs, err := net.Forward(map[string]*tensor.Tensor{"X": x})
	require.NoError(t, err)
	assert.NotSame(t, x, outs["Y"])
	assert.Equal(t, []float64{3}, outs["Y"].Float64s())
}

func TestInputBinding(t *testing.T) {
	net := load(t, onnxtest.AddModel())

	require.Error(t, net.SetInputNames([]string{"0", "1", "2"}))
	require.ErrorContains(t, net.SetInputNames([]string{"a", "a"}), "duplicate")
	require.ErrorContains(t, net.SetInput(tensor.FromSlice[float32](1), "missing"), "unknown input")
	require.Error(t, net.SetInput(nil, "X"))

	// An empty name binds the first input; Y is still unbound.
	require.NoError(t, net.SetInput(tensor.MustNew(tensor.Shape{2, 3}, make([]float32, 6)), ""))
	_, err := net.ForwardAndRetrieve([]string{"Z"})
	require.ErrorContains(t, err, "missing input: Y")
}

func TestConstantAttributeDecoded(t *testing.T) {
	m := onnxtest.Model(&onnx.GraphProto{
		Name: "const",
		Nodes: []onnx.NodeProto{
			onnxtest.Node("Constant", nil, []string{"C"},
				onnxtest.AttrTensor(t, "value", tensor.FromSlice[float32](1, 2))),
			onnxtest.Node("Add", []string{"X", "C"}, []string{"Y"}),
		},
		Inputs:  []onnx.ValueInfoProto{onnxtest.Float("X", 2)},
		Outputs: []onnx.ValueInfoProto{onnxtest.Float("Y", 2)},
	})
	net := load(t, m)

	outs, err := net.Forward(map[string]*tensor.Tensor{"X": tensor.FromSlice[float32](10, 20)})
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22}, outs["Y"].Float64s())
}

func TestMetadataAndClose(t *testing.T) {
	m := onnxtest.AddModel()
	m.MetadataProps = []onnx.StringStringEntry{{Key: "author", Value: "test"}}
	net := load(t, m)

	meta := net.Metadata()
	assert.Equal(t, "onnxtest", meta["producer_name"])
	assert.Equal(t, "test", meta["author"])

	require.NoError(t, net.Close())
	require.ErrorIs(t, net.SetInputNames([]string{"0"}), engine.ErrClosed)
	_, err := net.ForwardAndRetrieve([]string{"Z"})
	require.ErrorIs(t, err, engine.ErrClosed)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, onnxtest.Bytes(t, onnxtest.ReluModel()), 0o600))

	net, err := engine.LoadFile(path, engine.WithLogger(logutil.Discard()))
	require.NoError(t, err)
	defer net.Close()

	outs, err := net.Forward(map[string]*tensor.Tensor{
		"X": tensor.MustNew(tensor.Shape{1, 4}, []float32{-1, 2, -3, 4}),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 0, 4}, outs["Y"].Float64s())

	_, err = engine.LoadFile(filepath.Join(t.TempDir(), "missing.onnx"))
	require.Error(t, err)
}

func TestOutputsDoNotAliasWeights(t *testing.T) {
	m := onnxtest.Model(&onnx.GraphProto{
		Name: "alias",
		Nodes: []onnx.NodeProto{
			onnxtest.Node("Identity", []string{"W"}, []string{"Y"}),
			onnxtest.Node("Add", []string{"W", "X"}, []string{"Z"}),
		},
		Initializers: []onnx.TensorProto{onnxtest.Initializer(t, "W", tensor.FromSlice[float32](1, 2))},
		Inputs:       []onnx.ValueInfoProto{onnxtest.Float("X", 2)},
		Outputs:      []onnx.ValueInfoProto{onnxtest.Float("Y", 2), onnxtest.Float("Z", 2)},
	})
	net := load(t, m)
	require.NoError(t, net.SetInput(tensor.FromSlice[float32](10, 20), "X"))

	outs, err := net.ForwardAndRetrieve([]string{"Y", "Z"})
	require.NoError(t, err)
	y, err := tensor.Data[float32](outs[0])
	require.NoError(t, err)
	y[0] = 100

	outs, err = net.ForwardAndRetrieve([]string{"Y", "Z"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, outs[0].Float64s())
	assert.Equal(t, []float64{11, 22}, outs[1].Float64s())

	byName, err := net.Forward(map[string]*tensor.Tensor{"X": tensor.FromSlice[float32](0, 0)})
	require.NoError(t, err)
	y, err = tensor.Data[float32](byName["Y"])
	require.NoError(t, err)
	y[1] = -1
	byName, err = net.Forward(map[string]*tensor.Tensor{"X": tensor.FromSlice[float32](0, 0)})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, byName["Z"].Float64s())
}

func TestNameAccessorsReturnCopies(t *testing.T) {
	net := load(t, onnxtest.LinearModel(t))

	net.InputNames()[0] = "mutated"
	net.OutputNames()[0] = "mutated"
	net.UnconnectedOutputNames()[0] = "mutated"

	assert.Equal(t, []string{"X"}, net.InputNames())
	assert.Equal(t, []string{"Y", "H"}, net.OutputNames())
	assert.Equal(t, []string{"Y"}, net.UnconnectedOutputNames())
}
