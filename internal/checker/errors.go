package checker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModel is matched by every error returned from Check.
var ErrInvalidModel = errors.New("invalid onnx model")

// Issue is a single rule violation.
type Issue struct {
	Path    string // location in the model, e.g. "graph.node[2](Relu)"
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError lists every rule a model violates.
type ValidationError struct {
	Issues []Issue
	Err    error // underlying decode error, if the bytes did not parse
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrInvalidModel, e.Err)
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%v: %s", ErrInvalidModel, strings.Join(parts, "; "))
}

// Is reports ErrInvalidModel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidModel
}

// Unwrap returns the decode error, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
