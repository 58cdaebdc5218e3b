// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package backend

import (
	"log/slog"

	"github.com/born-ml/onnxbackend/internal/checker"
	"github.com/born-ml/onnxbackend/internal/engine"
	"github.com/born-ml/onnxbackend/tensor"
)

// Engine validates and loads serialized models.
type Engine interface {
	// Validate checks a serialized model and returns nil if it may be loaded.
	Validate(data []byte) error

	// LoadNetwork builds an executable network from a serialized model.
	// format names the serialization ("onnx").
	LoadNetwork(format string, data []byte) (Network, error)
}

// Network is a loaded model owned by a Rep.
type Network interface {
	// SetInputNames assigns positional names to the network inputs.
	SetInputNames(names []string) error

	// SetInput binds a tensor to a named input.
	SetInput(t *tensor.Tensor, name string) error

	// UnconnectedOutputNames returns the outputs no node consumes.
	UnconnectedOutputNames() []string

	// ForwardAndRetrieve executes the network and returns the named values
	// in the order given.
	ForwardAndRetrieve(names []string) ([]*tensor.Tensor, error)

	// Close releases the network.
	Close() error
}

// DefaultEngine returns the built-in CPU engine: the structural ONNX checker
// followed by the in-tree graph executor.
func DefaultEngine() Engine {
	return &defaultEngine{}
}

type defaultEngine struct {
	logger *slog.Logger
}

func (e *defaultEngine) Validate(data []byte) error {
	return checker.Check(data)
}

func (e *defaultEngine) LoadNetwork(format string, data []byte) (Network, error) {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}
	net, err := engine.LoadNetwork(format, data, engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return net, nil
}
