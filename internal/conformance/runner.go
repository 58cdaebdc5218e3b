package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/onnxbackend/backend"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// ModelRunner runs a serialized model once. *backend.Backend implements it.
type ModelRunner interface {
	RunModel(model onnx.Marshaler, inputs []*tensor.Tensor, device backend.Device) ([]*tensor.Tensor, error)
}

// Runner executes test cases concurrently. Each case prepares its own model
// so a Runner may share one backend across goroutines.
type Runner struct {
	Backend ModelRunner
	Config  Config
	Logger  *slog.Logger
	Device  backend.Device
}

// Run loads and executes the case directories. Failures of individual cases
// are recorded in the report; only cancellation of ctx returns an error.
func (r *Runner) Run(ctx context.Context, dirs []string) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	device := r.Device
	if device == "" {
		device = backend.CPU
	}

	results := make([]Result, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Config.Parallel, 1))
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.runCase(dir, device)
			logger.Debug("case finished", "case", results[i].Name, "status", results[i].Status, "duration", results[i].Duration)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return newReport(results), nil
}

func (r *Runner) runCase(dir string, device backend.Device) (res Result) {
	start := time.Now()
	res = Result{Name: filepath.Base(dir)}
	defer func() { res.Duration = time.Since(start) }()

	if r.Config.Excluded(res.Name) {
		res.Status = StatusSkip
		res.Message = "excluded"
		return res
	}

	c, err := LoadCase(dir)
	if err != nil {
		res.Status, res.Message = StatusError, err.Error()
		return res
	}
	for _, ds := range c.DataSets {
		got, err := r.Backend.RunModel(c.Model, ds.Inputs, device)
		if err != nil {
			res.Status = StatusError
			if errors.Is(err, backend.ErrValidation) {
				res.Status = StatusFail
			}
			res.Message = fmt.Sprintf("%s: %v", ds.Name, err)
			return res
		}
		if err := r.check(got, ds.Outputs); err != nil {
			res.Status, res.Message = StatusFail, fmt.Sprintf("%s: %v", ds.Name, err)
			return res
		}
	}
	res.Status = StatusPass
	return res
}

func (r *Runner) check(got, want []*tensor.Tensor) error {
	if len(got) != len(want) {
		return fmt.Errorf("%d outputs, expected %d", len(got), len(want))
	}
	for i := range want {
		if err := Compare(got[i], want[i], r.Config.RTol, r.Config.ATol); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}
