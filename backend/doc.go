// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend implements the ONNX backend interface on top of an
// inference engine.
//
// The backend itself does no parsing or execution. Prepare serializes a
// model, asks the engine to validate the bytes, then loads them into a
// Network; Rep.Run binds inputs under the positional names "0", "1", ...
// and returns the values of the network's unconnected outputs.
//
// Negotiation is optimistic: IsCompatible, IsOpsetSupported and
// SupportsDevice always report success and real failures surface from
// Prepare or Run. The device argument is accepted everywhere and ignored;
// the default engine runs on the CPU.
//
// # Example Usage
//
//	model, err := onnx.ParseFile("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rep, err := backend.Prepare(model, backend.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rep.Close()
//	outputs, err := rep.Run(input)
//
// Errors match the sentinels ErrValidation, ErrCompute,
// ErrUnsupportedOperation and ErrInvalidInput with errors.Is.
package backend
