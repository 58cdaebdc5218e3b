package conformance_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxbackend/backend"
	"github.com/born-ml/onnxbackend/internal/conformance"
	"github.com/born-ml/onnxbackend/internal/logutil"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/onnx/onnxtest"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// writeCase lays out a case directory with one data set per entry of sets.
func writeCase(t *testing.T, root, name string, model []byte, sets ...[2][]*tensor.Tensor) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, conformance.ModelFile), model, 0o600))
	for i, set := range sets {
		ds := filepath.Join(dir, fmt.Sprintf("test_data_set_%d", i))
		require.NoError(t, os.MkdirAll(ds, 0o750))
		for k, in := range set[0] {
			require.NoError(t, onnx.WriteTensorFile(filepath.Join(ds, fmt.Sprintf("input_%d.pb", k)), fmt.Sprint("in", k), in))
		}
		for k, out := range set[1] {
			require.NoError(t, onnx.WriteTensorFile(filepath.Join(ds, fmt.Sprintf("output_%d.pb", k)), fmt.Sprint("out", k), out))
		}
	}
	return dir
}

func reluSet(x, y []float32) [2][]*tensor.Tensor {
	return [2][]*tensor.Tensor{
		{tensor.MustNew(tensor.Shape{1, 4}, x)},
		{tensor.MustNew(tensor.Shape{1, 4}, y)},
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	model := onnxtest.Bytes(t, onnxtest.ReluModel())
	writeCase(t, root, "test_b", model)
	writeCase(t, filepath.Join(root, "node"), "test_a", model)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o750))

	dirs, err := conformance.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "node", "test_a"),
		filepath.Join(root, "test_b"),
	}, dirs)

	_, err = conformance.Discover(filepath.Join(root, "missing"))
	require.Error(t, err)
}

func TestLoadCaseOrdersDataSets(t *testing.T) {
	root := t.TempDir()
	sets := make([][2][]*tensor.Tensor, 11)
	for i := range sets {
		v := float32(i)
		sets[i] = reluSet([]float32{v, v, v, v}, []float32{v, v, v, v})
	}
	dir := writeCase(t, root, "test_relu", onnxtest.Bytes(t, onnxtest.ReluModel()), sets...)

	c, err := conformance.LoadCase(dir)
	require.NoError(t, err)
	assert.Equal(t, "test_relu", c.Name)
	require.Len(t, c.DataSets, 11)
	assert.Equal(t, "test_data_set_2", c.DataSets[2].Name)
	assert.Equal(t, "test_data_set_10", c.DataSets[10].Name)
	require.Len(t, c.DataSets[10].Inputs, 1)
	assert.Equal(t, []float64{10, 10, 10, 10}, c.DataSets[10].Inputs[0].Float64s())
}

func TestLoadCaseErrors(t *testing.T) {
	root := t.TempDir()
	_, err := conformance.LoadCase(filepath.Join(root, "nothing"))
	require.Error(t, err)

	dir := writeCase(t, root, "test_no_data", onnxtest.Bytes(t, onnxtest.ReluModel()))
	_, err = conformance.LoadCase(dir)
	require.ErrorContains(t, err, "no test_data_set_")
}

func TestCompare(t *testing.T) {
	f := func(v ...float32) *tensor.Tensor { return tensor.FromSlice(v...) }
	nan := float32(0)
	nan /= nan

	tests := []struct {
		name      string
		got, want *tensor.Tensor
		wantErr   string
	}{
		{"equal", f(1, 2), f(1, 2), ""},
		{"within rtol", f(100.05), f(100), ""},
		{"outside tolerance", f(1.1), f(1), "1 of 1 elements differ"},
		{"nan matches nan", f(nan), f(nan), ""},
		{"nan vs number", f(nan), f(1), "differ"},
		{"dtype", tensor.FromSlice[int64](1), f(1), "dtype int64"},
		{"shape", tensor.MustNew(tensor.Shape{1, 2}, []float32{1, 2}), f(1, 2), "shape [1 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conformance.Compare(tt.got, tt.want, 1e-3, 1e-7)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conformance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("atol: 0.01\nparallel: 3\nexclude:\n  - test_conv_*\n"), 0o600))

	cfg, err := conformance.LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, cfg.ATol, 1e-12)
	assert.InDelta(t, conformance.DefaultConfig().RTol, cfg.RTol, 1e-12)
	assert.Equal(t, 3, cfg.Parallel)
	assert.True(t, cfg.Excluded("test_conv_with_strides"))
	assert.False(t, cfg.Excluded("test_relu"))

	require.NoError(t, os.WriteFile(path, []byte("exclude: ['[']\n"), 0o600))
	_, err = conformance.LoadConfig(path)
	require.ErrorContains(t, err, "exclude pattern")

	require.NoError(t, os.WriteFile(path, []byte("rtol: -1\n"), 0o600))
	_, err = conformance.LoadConfig(path)
	require.ErrorContains(t, err, "non-negative")

	_, err = conformance.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestRunnerClassifiesCases(t *testing.T) {
	root := t.TempDir()
	relu := onnxtest.Bytes(t, onnxtest.ReluModel())
	writeCase(t, root, "test_pass", relu,
		reluSet([]float32{-1, 2, -3, 4}, []float32{0, 2, 0, 4}),
		reluSet([]float32{1, 1, 1, 1}, []float32{1, 1, 1, 1}))
	writeCase(t, root, "test_wrong", relu, reluSet([]float32{-1, 2, -3, 4}, []float32{0, 2, 0, 5}))
	writeCase(t, root, "test_invalid", []byte{0xff, 0xff}, reluSet([]float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}))
	writeCase(t, root, "test_no_data", relu)
	writeCase(t, root, "test_conv_skipped", relu)

	dirs, err := conformance.Discover(root)
	require.NoError(t, err)

	cfg := conformance.DefaultConfig()
	cfg.Parallel = 2
	cfg.Exclude = []string{"test_conv_*"}
	r := &conformance.Runner{
		Backend: backend.New(backend.WithLogger(logutil.Discard())),
		Config:  cfg,
		Logger:  logutil.Discard(),
	}
	report, err := r.Run(context.Background(), dirs)
	require.NoError(t, err)

	status := make(map[string]conformance.Status)
	for _, res := range report.Results {
		status[res.Name] = res.Status
		if res.Status != conformance.StatusSkip {
			assert.Positive(t, res.Duration, "%s has no recorded duration", res.Name)
		}
	}
	assert.Equal(t, map[string]conformance.Status{
		"test_conv_skipped": conformance.StatusSkip,
		"test_invalid":      conformance.StatusFail,
		"test_no_data":      conformance.StatusError,
		"test_pass":         conformance.StatusPass,
		"test_wrong":        conformance.StatusFail,
	}, status)
	assert.Equal(t, 1, report.Counts[conformance.StatusPass])
	assert.Equal(t, 2, report.Counts[conformance.StatusFail])
	assert.False(t, report.OK())

	// Results keep discovery order.
	assert.Equal(t, "test_conv_skipped", report.Results[0].Name)
}

func TestRunnerCanceled(t *testing.T) {
	root := t.TempDir()
	dir := writeCase(t, root, "test_relu", onnxtest.Bytes(t, onnxtest.ReluModel()),
		reluSet([]float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &conformance.Runner{Backend: backend.New(), Config: conformance.DefaultConfig(), Logger: logutil.Discard()}
	_, err := r.Run(ctx, []string{dir})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReportWriters(t *testing.T) {
	root := t.TempDir()
	dir := writeCase(t, root, "test_relu", onnxtest.Bytes(t, onnxtest.ReluModel()),
		reluSet([]float32{-1, 2, -3, 4}, []float32{0, 2, 0, 4}))
	r := &conformance.Runner{Backend: backend.New(), Config: conformance.DefaultConfig(), Logger: logutil.Discard()}
	report, err := r.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.True(t, report.OK())

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))
	var decoded struct {
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"results"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "pass", decoded.Results[0].Status)
	assert.Equal(t, 1, decoded.Counts["pass"])

	buf.Reset()
	require.NoError(t, report.WriteTable(&buf))
	assert.Contains(t, buf.String(), "test_relu")
	assert.Contains(t, buf.String(), "pass")
}
