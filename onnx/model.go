// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package onnx

import "github.com/born-ml/onnxbackend/tensor"

// Model is a loaded ONNX graph ready for inference.
//
// The model owns its weights and a copy of the graph. Use Forward to run it
// with inputs keyed by graph input name; the backend package drives the same
// network through positional names instead.
type Model interface {
	// Forward runs inference with named inputs and returns every graph
	// output keyed by name.
	//
	// Example:
	//
	//	outputs, err := model.Forward(map[string]*tensor.Tensor{
	//	    "input_ids":      inputIDs,
	//	    "attention_mask": attentionMask,
	//	})
	//	logits := outputs["logits"]
	Forward(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

	// InputNames returns the names of graph inputs that are not initializers.
	InputNames() []string

	// OutputNames returns the names of graph outputs.
	OutputNames() []string

	// OpsetVersion returns the default-domain opset the model imports.
	OpsetVersion() int64

	// Metadata returns model metadata as key-value pairs.
	//
	// Keys:
	//   - "producer_name", "producer_version", "domain"
	//   - custom keys from model.metadata_props
	Metadata() map[string]string

	// Close releases the model. Later calls to Forward fail.
	Close() error
}
