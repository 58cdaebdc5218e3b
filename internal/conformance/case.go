// Package conformance runs ONNX backend test cases against a backend.
//
// A test case is a directory holding model.onnx and one or more
// test_data_set_N directories of input_K.pb and output_K.pb TensorProto files,
// the layout used by the ONNX backend test suite.
package conformance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// ModelFile is the model file name inside a case directory.
const ModelFile = "model.onnx"

const dataSetPrefix = "test_data_set_"

// Case is a loaded test case.
type Case struct {
	Name     string
	Dir      string
	Model    onnx.RawModel
	DataSets []DataSet
}

// DataSet is one set of inputs with their expected outputs.
type DataSet struct {
	Name    string
	Inputs  []*tensor.Tensor
	Outputs []*tensor.Tensor
}

// Discover returns the directories under root that contain a model.onnx,
// sorted. root itself is returned if it is a case directory.
func Discover(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == ModelFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	slices.Sort(dirs)
	return dirs, nil
}

// LoadCase reads the model and all data sets of a case directory.
//
//nolint:gosec // G304: case paths are user provided.
func LoadCase(dir string) (*Case, error) {
	model, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	c := &Case{Name: filepath.Base(dir), Dir: dir, Model: model}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dataSetPrefix) {
			continue
		}
		ds, err := loadDataSet(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		c.DataSets = append(c.DataSets, *ds)
	}
	slices.SortFunc(c.DataSets, func(a, b DataSet) int {
		return suffixIndex(a.Name, dataSetPrefix) - suffixIndex(b.Name, dataSetPrefix)
	})
	if len(c.DataSets) == 0 {
		return nil, fmt.Errorf("%s: no %s* directories", dir, dataSetPrefix)
	}
	return c, nil
}

func loadDataSet(dir string) (*DataSet, error) {
	ds := &DataSet{Name: filepath.Base(dir)}
	var err error
	if ds.Inputs, err = readIndexed(dir, "input_"); err != nil {
		return nil, err
	}
	if ds.Outputs, err = readIndexed(dir, "output_"); err != nil {
		return nil, err
	}
	return ds, nil
}

// readIndexed reads prefix0.pb, prefix1.pb, ... until the next index is
// missing.
func readIndexed(dir, prefix string) ([]*tensor.Tensor, error) {
	var out []*tensor.Tensor
	for i := 0; ; i++ {
		path := filepath.Join(dir, prefix+strconv.Itoa(i)+".pb")
		_, t, err := onnx.ReadTensorFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}

func suffixIndex(name, prefix string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return -1
	}
	return n
}
