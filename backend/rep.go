// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package backend

import (
	"log/slog"
	"strconv"

	"github.com/born-ml/onnxbackend/tensor"
)

// Rep is a prepared model. It is not safe for concurrent use.
type Rep struct {
	net    Network
	logger *slog.Logger
}

// Run binds inputs under the names "0".."n-1", executes the network and
// returns one tensor per unconnected output, in the engine's order.
// Run(t) is the same as Run([]*tensor.Tensor{t}...).
func (r *Rep) Run(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) == 0 {
		return nil, &InputError{Index: -1, Reason: "no inputs"}
	}
	names := make([]string, len(inputs))
	for i, t := range inputs {
		if t == nil {
			return nil, &InputError{Index: i, Reason: "nil tensor"}
		}
		names[i] = strconv.Itoa(i)
	}

	if err := r.net.SetInputNames(names); err != nil {
		return nil, &ComputeError{Op: "bind", Err: err}
	}
	for i, t := range inputs {
		if err := r.net.SetInput(t, names[i]); err != nil {
			return nil, &ComputeError{Op: "bind", Err: err}
		}
	}

	outNames := r.net.UnconnectedOutputNames()
	r.logger.Debug("running network", "inputs", len(inputs), "outputs", outNames)
	outputs, err := r.net.ForwardAndRetrieve(outNames)
	if err != nil {
		return nil, &ComputeError{Op: "forward", Err: err}
	}
	return outputs, nil
}

// OutputNames returns the names of the values Run returns.
func (r *Rep) OutputNames() []string {
	return r.net.UnconnectedOutputNames()
}

// Close releases the network.
func (r *Rep) Close() error {
	return r.net.Close()
}
