package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerActivations adds activation operators to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unaryNumericHandler("Relu"))
	r.Register("LeakyRelu", handleLeakyRelu)
	r.Register("PRelu", handlePRelu)
	r.Register("Sigmoid", unaryFloatHandler(sigmoid))
	r.Register("Tanh", unaryFloatHandler(math.Tanh))
	r.Register("Softmax", softmaxHandler(false))
	r.Register("LogSoftmax", softmaxHandler(true))
	r.Register("Clip", handleClip)
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func handleLeakyRelu(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	alpha := float64(GetAttrFloat(node, "alpha", 0.01))
	out, err := unaryFloat("LeakyRelu", inputs[0], func(v float64) float64 {
		if v < 0 {
			return alpha * v
		}
		return v
	})
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

func handlePRelu(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	x, slope := inputs[0], inputs[1]
	if x.DType() != slope.DType() {
		return nil, fmt.Errorf("PRelu: mismatched input types %s and %s", x.DType(), slope.DType())
	}
	var (
		out *tensor.Tensor
		err error
	)
	switch x.DType() {
	case tensor.Float32:
		out, err = broadcastApply(x, slope, prelu[float32])
	case tensor.Float64:
		out, err = broadcastApply(x, slope, prelu[float64])
	default:
		return nil, fmt.Errorf("PRelu: unsupported type %s", x.DType())
	}
	if err != nil {
		return nil, fmt.Errorf("PRelu: %w", err)
	}
	return one(out), nil
}

func prelu[T tensor.Float](x, slope T) T {
	if x < 0 {
		return slope * x
	}
	return x
}

// softmaxHandler implements Softmax and LogSoftmax. From opset 13 the
// normalization runs along a single axis (default -1); earlier opsets
// flatten the input to 2-D at axis (default 1) and normalize each row.
func softmaxHandler(logarithm bool) OpHandler {
	return func(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		if !x.DType().IsFloat() {
			return nil, fmt.Errorf("%s: unsupported type %s, expected float", node.OpType, x.DType())
		}

		legacy := ctx.Opset > 0 && ctx.Opset < 13
		defaultAxis := int64(-1)
		if legacy {
			defaultAxis = 1
		}
		rank := x.Rank()
		if rank == 0 {
			rank = 1
		}
		axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", defaultAxis)), rank)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.OpType, err)
		}

		shape := x.Shape()
		if len(shape) == 0 {
			shape = tensor.Shape{1}
		}
		outer, n, inner := splitAxis(shape, axis)
		if legacy {
			n *= inner
			inner = 1
		}

		vals := x.Float64s()
		for o := range outer {
			for in := range inner {
				base := o*n*inner + in
				peak := math.Inf(-1)
				for i := range n {
					peak = math.Max(peak, vals[base+i*inner])
				}
				var sum float64
				for i := range n {
					sum += math.Exp(vals[base+i*inner] - peak)
				}
				for i := range n {
					v := vals[base+i*inner] - peak
					if logarithm {
						vals[base+i*inner] = v - math.Log(sum)
					} else {
						vals[base+i*inner] = math.Exp(v) / sum
					}
				}
			}
		}

		f64, err := tensor.New(x.Shape(), vals)
		if err != nil {
			return nil, err
		}
		out, err := tensor.Cast(f64, x.DType())
		if err != nil {
			return nil, err
		}
		return one(out), nil
	}
}

// handleClip bounds values to [min, max]. Opset 11 moved the bounds from
// attributes to optional inputs; both forms are accepted.
func handleClip(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 3); err != nil {
		return nil, err
	}
	lo := float64(GetAttrFloat(node, "min", float32(math.Inf(-1))))
	hi := float64(GetAttrFloat(node, "max", float32(math.Inf(1))))
	lo, err := scalarFloat(optionalInput(inputs, 1), lo)
	if err != nil {
		return nil, fmt.Errorf("Clip: min: %w", err)
	}
	hi, err = scalarFloat(optionalInput(inputs, 2), hi)
	if err != nil {
		return nil, fmt.Errorf("Clip: max: %w", err)
	}

	x := inputs[0]
	if x.DType() == tensor.Bool {
		return nil, fmt.Errorf("Clip: unsupported type %s", x.DType())
	}
	vals := x.Float64s()
	for i, v := range vals {
		vals[i] = math.Min(math.Max(v, lo), hi)
	}
	f64, err := tensor.New(x.Shape(), vals)
	if err != nil {
		return nil, err
	}
	out, err := tensor.Cast(f64, x.DType())
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
