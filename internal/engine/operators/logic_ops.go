package operators

import (
	"fmt"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerLogicOps adds comparison and selection operators to the registry.
func (r *Registry) registerLogicOps() {
	for _, op := range []string{"Equal", "Greater", "Less"} {
		r.Register(op, compareHandler(op))
	}
	r.Register("Not", handleNot)
	r.Register("Where", handleWhere)
}

func compareHandler(op string) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 2, 2); err != nil {
			return nil, err
		}
		out, err := compareNumeric(op, inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		return one(out), nil
	}
}

func handleNot(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	d, err := tensor.Data[bool](inputs[0])
	if err != nil {
		return nil, fmt.Errorf("Not: %w", err)
	}
	out, err := tensor.New(inputs[0].Shape(), mapSlice(d, func(v bool) bool { return !v }))
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// handleWhere selects from X where the condition holds and from Y
// elsewhere, broadcasting all three operands.
func handleWhere(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 3, 3); err != nil {
		return nil, err
	}
	cond, x, y := inputs[0], inputs[1], inputs[2]
	mask, err := tensor.Data[bool](cond)
	if err != nil {
		return nil, fmt.Errorf("Where: condition: %w", err)
	}
	shape, err := tensor.BroadcastShapes(cond.Shape(), x.Shape(), y.Shape())
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}

	both, err := tensor.Join(x, y)
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}
	co := tensor.BroadcastOffsets(cond.Shape(), shape)
	xo := tensor.BroadcastOffsets(x.Shape(), shape)
	yo := tensor.BroadcastOffsets(y.Shape(), shape)
	src := make([]int, len(co))
	for i := range src {
		if mask[co[i]] {
			src[i] = xo[i]
		} else {
			src[i] = x.NumElements() + yo[i]
		}
	}
	out, err := tensor.Take(both, shape, src)
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}
	return one(out), nil
}
