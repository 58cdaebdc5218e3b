package operators

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// OpHandler processes an ONNX node and returns its output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

// Context carries per-network execution settings into operators.
type Context struct {
	// Opset is the default-domain opset version of the model. Operators
	// whose semantics changed between opsets (Softmax, Squeeze, ...)
	// branch on it.
	Opset  int64
	Logger *slog.Logger
}

// Registry maps ONNX operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerReduceOps()
	r.registerLogicOps()

	return r
}

// Register adds or replaces an operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", node.OpType)
	}
	return handler(ctx, node, inputs)
}

// SupportedOps returns all registered operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
