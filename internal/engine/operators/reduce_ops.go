package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerReduceOps adds reduction operators to the registry.
func (r *Registry) registerReduceOps() {
	r.Register("ReduceSum", reduceHandler(reduceSum))
	r.Register("ReduceMean", reduceHandler(reduceMean))
	r.Register("ReduceMax", reduceHandler(reduceMax))
}

type reduction struct {
	init   float64
	step   func(acc, v float64) float64
	finish func(acc float64, count int) float64
}

var (
	reduceSum = reduction{
		step: func(acc, v float64) float64 { return acc + v },
	}
	reduceMean = reduction{
		step:   func(acc, v float64) float64 { return acc + v },
		finish: func(acc float64, count int) float64 { return acc / float64(count) },
	}
	reduceMax = reduction{
		init: math.Inf(-1),
		step: math.Max,
	}
)

// reduceHandler builds a Reduce* operator. Axes come from the second input
// (ReduceSum from opset 13, the others from 18) or the axes attribute.
// An empty axes list reduces everything unless noop_with_empty_axes is set.
func reduceHandler(red reduction) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 1, 2); err != nil {
			return nil, err
		}
		x := inputs[0]
		if x.DType() == tensor.Bool {
			return nil, fmt.Errorf("%s: unsupported type %s", node.OpType, x.DType())
		}
		axes, err := axesOf(node, inputs, 1)
		if err != nil {
			return nil, err
		}
		keepDims := GetAttrInt(node, "keepdims", 1) != 0
		if len(axes) == 0 && GetAttrInt(node, "noop_with_empty_axes", 0) != 0 {
			return one(x), nil
		}

		rank := x.Rank()
		reduced := make([]bool, rank)
		for _, a := range axes {
			axis, err := tensor.NormalizeAxis(int(a), rank)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.OpType, err)
			}
			reduced[axis] = true
		}
		if len(axes) == 0 {
			for i := range reduced {
				reduced[i] = true
			}
		}

		// kept has the reduced axes set to 1; its strides address the output.
		kept := x.Shape().Clone()
		shape := tensor.Shape{}
		for i, d := range x.Shape() {
			if reduced[i] {
				kept[i] = 1
				if keepDims {
					shape = append(shape, 1)
				}
				continue
			}
			shape = append(shape, d)
		}
		offsets := tensor.BroadcastOffsets(kept, x.Shape())

		acc := make([]float64, kept.NumElements())
		for i := range acc {
			acc[i] = red.init
		}
		for i, v := range x.Float64s() {
			acc[offsets[i]] = red.step(acc[offsets[i]], v)
		}
		if red.finish != nil && len(acc) > 0 {
			count := x.NumElements() / len(acc)
			for i := range acc {
				acc[i] = red.finish(acc[i], count)
			}
		}

		f64, err := tensor.New(shape, acc)
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
