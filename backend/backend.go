// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/onnxbackend/onnx"
	"github.com/born-ml/onnxbackend/tensor"
)

// Device names a compute device. Devices are accepted and ignored.
type Device string

// Device names used by ONNX backend test suites.
const (
	CPU  Device = "CPU"
	CUDA Device = "CUDA"
)

// Backend prepares and runs ONNX models on an Engine.
type Backend struct {
	engine Engine
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithEngine replaces the default engine.
func WithEngine(e Engine) Option {
	return func(b *Backend) {
		b.engine = e
	}
}

// WithLogger sets the logger. It is also passed to the default engine.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a Backend. Without options it uses DefaultEngine and
// slog.Default.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.engine == nil {
		b.engine = &defaultEngine{logger: b.logger}
	}
	return b
}

func (b *Backend) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// IsCompatible always reports true; incompatibilities surface from Prepare.
func (b *Backend) IsCompatible(_ onnx.Marshaler, _ Device) bool {
	return true
}

// IsOpsetSupported always reports true with an empty reason.
func (b *Backend) IsOpsetSupported(_ onnx.Marshaler) (bool, string) {
	return true, ""
}

// SupportsDevice always reports true; the device is not used.
func (b *Backend) SupportsDevice(_ Device) bool {
	return true
}

// Prepare serializes model, validates the bytes and loads them into a
// network. Validation failures return a *ValidationError and load failures
// a *ComputeError; in both cases no Rep is returned.
func (b *Backend) Prepare(model onnx.Marshaler, device Device) (*Rep, error) {
	if model == nil {
		return nil, &ValidationError{Err: errors.New("nil model")}
	}
	data, err := model.Marshal()
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("serialize model: %w", err)}
	}
	b.log().Debug("preparing model", "bytes", len(data), "device", device)

	if err := b.engine.Validate(data); err != nil {
		return nil, &ValidationError{Err: err}
	}
	net, err := b.engine.LoadNetwork("onnx", data)
	if err != nil {
		return nil, &ComputeError{Op: "load", Err: err}
	}
	return &Rep{net: net, logger: b.log()}, nil
}

// RunModel prepares model and runs it once on inputs. The model is always
// prepared afresh and the network closed before returning.
func (b *Backend) RunModel(model onnx.Marshaler, inputs []*tensor.Tensor, device Device) ([]*tensor.Tensor, error) {
	rep, err := b.Prepare(model, device)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rep.Close(); err != nil {
			b.log().Warn("failed to close network", "error", err)
		}
	}()
	return rep.Run(inputs...)
}

// RunNode always fails: single operators are not executed outside a graph.
func (b *Backend) RunNode(_ *onnx.NodeProto, _ []*tensor.Tensor, _ Device, _ []onnx.ValueInfoProto) ([]*tensor.Tensor, error) {
	return nil, &UnsupportedOperationError{Operation: "RunNode"}
}

var std = New()

// IsCompatible reports whether model can run on device. It is always true.
func IsCompatible(model onnx.Marshaler, device Device) bool {
	return std.IsCompatible(model, device)
}

// SupportsDevice reports whether device is supported. It is always true.
func SupportsDevice(device Device) bool {
	return std.SupportsDevice(device)
}

// Prepare prepares model with the default backend.
func Prepare(model onnx.Marshaler, device Device) (*Rep, error) {
	return std.Prepare(model, device)
}

// Run prepares and runs model with the default backend.
func Run(model onnx.Marshaler, inputs []*tensor.Tensor, device Device) ([]*tensor.Tensor, error) {
	return std.RunModel(model, inputs, device)
}
