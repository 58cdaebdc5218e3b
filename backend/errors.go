// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below.
var (
	ErrValidation           = errors.New("model validation failed")
	ErrCompute              = errors.New("inference engine failed")
	ErrUnsupportedOperation = errors.New("operation not supported")
	ErrInvalidInput         = errors.New("invalid input")
)

// ValidationError is returned by Prepare when the model cannot be serialized
// or the checker rejects it. No network is constructed.
type ValidationError struct {
	Err error // checker or serialization error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrValidation, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ComputeError carries a failure reported by the engine while loading or
// running a network.
type ComputeError struct {
	Op  string // "load", "bind" or "forward"
	Err error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrCompute, e.Op, e.Err)
}

// Unwrap returns the engine's error.
func (e *ComputeError) Unwrap() error { return e.Err }

// Is reports ErrCompute.
func (e *ComputeError) Is(target error) bool { return target == ErrCompute }

// UnsupportedOperationError is returned by RunNode.
type UnsupportedOperationError struct {
	Operation string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, ErrUnsupportedOperation)
}

// Is reports ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }

// InputError rejects the arguments of Rep.Run before the engine is called.
type InputError struct {
	Index  int // position of the offending input, or -1
	Reason string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", ErrInvalidInput, e.Reason)
	}
	return fmt.Sprintf("%v %d: %s", ErrInvalidInput, e.Index, e.Reason)
}

// Is reports ErrInvalidInput.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }
