package operators

import (
	"fmt"

	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerUtilityOps adds utility operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleDropout)
	r.Register("Constant", handleConstant)
	r.Register("ConstantOfShape", handleConstantOfShape)
	r.Register("Cast", handleCast)
	r.Register("Size", handleSize)
}

func handleIdentity(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	return one(inputs[0]), nil
}

// handleDropout is the identity at inference time. When the node asks for
// the mask output it is all true.
func handleDropout(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 3); err != nil {
		return nil, err
	}
	outputs := one(inputs[0])
	if len(node.Outputs) > 1 && node.Outputs[1] != "" {
		mask := make([]bool, inputs[0].NumElements())
		for i := range mask {
			mask[i] = true
		}
		t, err := tensor.New(inputs[0].Shape(), mask)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, t)
	}
	return outputs, nil
}

func handleConstant(_ *Context, node *Node, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
	for i := range node.Attributes {
		attr := &node.Attributes[i]
		switch attr.Name {
		case "value":
			if attr.T == nil {
				return nil, fmt.Errorf("Constant: value attribute has no tensor")
			}
			return one(attr.T), nil
		case "value_float":
			return one(tensor.Scalar(attr.F)), nil
		case "value_floats":
			return one(tensor.FromSlice(attr.Floats...)), nil
		case "value_int":
			return one(tensor.Scalar(attr.I)), nil
		case "value_ints":
			return one(tensor.FromSlice(attr.Ints...)), nil
		}
	}
	return nil, fmt.Errorf("Constant: no supported value attribute")
}

// handleConstantOfShape fills a tensor of the given shape with the single
// element of the value attribute (float32 zero by default).
func handleConstantOfShape(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	dims, err := inputs[0].Int64s()
	if err != nil {
		return nil, fmt.Errorf("ConstantOfShape: shape: %w", err)
	}
	shape := make(tensor.Shape, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("ConstantOfShape: %w", err)
	}

	value := tensor.Scalar(float32(0))
	if a := node.Attr("value"); a != nil && a.T != nil {
		if a.T.NumElements() != 1 {
			return nil, fmt.Errorf("ConstantOfShape: value must have one element, got %v", a.T.Shape())
		}
		value = a.T
	}
	src := make([]int, shape.NumElements())
	out, err := tensor.Take(value, shape, src)
	if err != nil {
		return nil, fmt.Errorf("ConstantOfShape: %w", err)
	}
	return one(out), nil
}

func handleCast(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	to := node.Attr("to")
	if to == nil {
		return nil, fmt.Errorf("Cast: to attribute is required")
	}
	dtype, ok := onnx.TensorDataType(int32(to.I)) //nolint:gosec // G115: ONNX type codes are small.
	if !ok {
		return nil, fmt.Errorf("Cast: unsupported target type %s", onnx.DataTypeName(int32(to.I))) //nolint:gosec // G115: as above.
	}
	out, err := tensor.Cast(inputs[0], dtype)
	if err != nil {
		return nil, fmt.Errorf("Cast: %w", err)
	}
	return one(out), nil
}

func handleSize(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	return one(tensor.Scalar(int64(inputs[0].NumElements()))), nil
}
