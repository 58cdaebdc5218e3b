package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Shape", handleShape)
	r.Register("Reshape", handleReshape)
	r.Register("Flatten", handleFlatten)
	r.Register("Transpose", handleTranspose)
	r.Register("Squeeze", handleSqueeze)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Concat", handleConcat)
	r.Register("Gather", handleGather)
	r.Register("Expand", handleExpand)
}

// handleShape returns the input's dimensions as a 1-D int64 tensor,
// optionally sliced by the start and end attributes (opset 15).
func handleShape(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	shape := inputs[0].Shape()
	rank := int64(len(shape))
	clamp := func(v int64) int {
		if v < 0 {
			v += rank
		}
		return int(min(max(v, 0), rank))
	}
	start := clamp(GetAttrInt(node, "start", 0))
	end := clamp(GetAttrInt(node, "end", rank))

	dims := []int64{}
	for i := start; i < end; i++ {
		dims = append(dims, int64(shape[i]))
	}
	return one(tensor.FromSlice(dims...)), nil
}

// handleReshape implements Reshape: 0 copies the input dimension (unless
// allowzero is set) and a single -1 is inferred.
func handleReshape(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	target, err := inputs[1].Int64s()
	if err != nil {
		return nil, fmt.Errorf("Reshape: shape: %w", err)
	}
	allowZero := GetAttrInt(node, "allowzero", 0) != 0

	shape := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, v := range target {
		switch {
		case v == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("Reshape: more than one -1 in %v", target)
			}
			infer = i
			continue
		case v == 0 && !allowZero:
			if i >= x.Rank() {
				return nil, fmt.Errorf("Reshape: dimension %d copies a missing input dimension", i)
			}
			shape[i] = x.Shape()[i]
		case v < 0:
			return nil, fmt.Errorf("Reshape: invalid dimension %d", v)
		default:
			shape[i] = int(v)
		}
		known *= shape[i]
	}
	if infer >= 0 {
		if known == 0 || x.NumElements()%known != 0 {
			return nil, fmt.Errorf("Reshape: cannot infer dimension for %v from %v", target, x.Shape())
		}
		shape[infer] = x.NumElements() / known
	}

	out, err := x.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Reshape: %w", err)
	}
	return one(out), nil
}

func handleFlatten(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += x.Rank()
	}
	if axis < 0 || axis > x.Rank() {
		return nil, fmt.Errorf("Flatten: axis %d out of range for rank %d", axis, x.Rank())
	}
	outer := x.Shape()[:axis].NumElements()
	out, err := x.Reshape(tensor.Shape{outer, x.Shape()[axis:].NumElements()})
	if err != nil {
		return nil, fmt.Errorf("Flatten: %w", err)
	}
	return one(out), nil
}

func handleTranspose(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := x.Rank()

	perm := make([]int, rank)
	if attr := GetAttrInts(node, "perm"); len(attr) > 0 {
		if len(attr) != rank {
			return nil, fmt.Errorf("Transpose: perm %v does not match rank %d", attr, rank)
		}
		seen := make([]bool, rank)
		for i, p := range attr {
			if p < 0 || int(p) >= rank || seen[p] {
				return nil, fmt.Errorf("Transpose: invalid perm %v", attr)
			}
			seen[p] = true
			perm[i] = int(p)
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	out, err := permute(x, perm)
	if err != nil {
		return nil, fmt.Errorf("Transpose: %w", err)
	}
	return one(out), nil
}

// permute reorders x's axes: output axis i is input axis perm[i].
func permute(x *tensor.Tensor, perm []int) (*tensor.Tensor, error) {
	in := x.Shape()
	strides := in.Strides()
	shape := make(tensor.Shape, len(perm))
	srcStrides := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = in[p]
		srcStrides[i] = strides[p]
	}

	src := make([]int, shape.NumElements())
	index := make([]int, len(shape))
	for flat := range src {
		off := 0
		for d, idx := range index {
			off += idx * srcStrides[d]
		}
		src[flat] = off
		for d := len(shape) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	return tensor.Take(x, shape, src)
}

func handleSqueeze(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	axes, err := axesOf(node, inputs, 1)
	if err != nil {
		return nil, err
	}

	drop := make([]bool, x.Rank())
	for _, a := range axes {
		axis, err := tensor.NormalizeAxis(int(a), x.Rank())
		if err != nil {
			return nil, fmt.Errorf("Squeeze: %w", err)
		}
		if x.Shape()[axis] != 1 {
			return nil, fmt.Errorf("Squeeze: dimension %d has size %d", axis, x.Shape()[axis])
		}
		drop[axis] = true
	}

	shape := tensor.Shape{}
	for i, d := range x.Shape() {
		if drop[i] || (len(axes) == 0 && d == 1) {
			continue
		}
		shape = append(shape, d)
	}
	out, err := x.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Squeeze: %w", err)
	}
	return one(out), nil
}

func handleUnsqueeze(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	axes, err := axesOf(node, inputs, 1)
	if err != nil {
		return nil, err
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("Unsqueeze: axes are required")
	}

	rank := x.Rank() + len(axes)
	insert := make([]bool, rank)
	for _, a := range axes {
		axis, err := tensor.NormalizeAxis(int(a), rank)
		if err != nil {
			return nil, fmt.Errorf("Unsqueeze: %w", err)
		}
		if insert[axis] {
			return nil, fmt.Errorf("Unsqueeze: duplicate axis %d", a)
		}
		insert[axis] = true
	}

	shape := make(tensor.Shape, 0, rank)
	next := 0
	for i := range rank {
		if insert[i] {
			shape = append(shape, 1)
			continue
		}
		shape = append(shape, x.Shape()[next])
		next++
	}
	out, err := x.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Unsqueeze: %w", err)
	}
	return one(out), nil
}

func handleConcat(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) == 0 || slices.Contains(inputs, nil) {
		return nil, fmt.Errorf("Concat requires at least 1 input")
	}
	if node.Attr("axis") == nil {
		return nil, fmt.Errorf("Concat: axis attribute is required")
	}
	first := inputs[0].Shape()
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", 0)), len(first))
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}

	shape := first.Clone()
	shape[axis] = 0
	for _, t := range inputs {
		s := t.Shape()
		if len(s) != len(first) {
			return nil, fmt.Errorf("Concat: rank mismatch %v and %v", first, s)
		}
		for d := range s {
			if d != axis && s[d] != first[d] {
				return nil, fmt.Errorf("Concat: shape mismatch %v and %v on axis %d", first, s, d)
			}
		}
		shape[axis] += s[axis]
	}

	joined, err := tensor.Join(inputs...)
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}

	// Copy [outer, dim, inner] blocks from each input in turn.
	outer, _, inner := splitAxis(shape, axis)
	src := make([]int, 0, shape.NumElements())
	for o := range outer {
		base := 0
		for _, t := range inputs {
			block := t.Shape()[axis] * inner
			for i := range block {
				src = append(src, base+o*block+i)
			}
			base += t.NumElements()
		}
	}
	out, err := tensor.Take(joined, shape, src)
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}
	return one(out), nil
}

// handleGather selects slices of data along axis by integer indices;
// negative indices count from the end.
func handleGather(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	data := inputs[0]
	indices, err := inputs[1].Int64s()
	if err != nil {
		return nil, fmt.Errorf("Gather: indices: %w", err)
	}
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", 0)), data.Rank())
	if err != nil {
		return nil, fmt.Errorf("Gather: %w", err)
	}

	outer, n, inner := splitAxis(data.Shape(), axis)
	shape := slices.Concat(data.Shape()[:axis], inputs[1].Shape(), data.Shape()[axis+1:])
	src := make([]int, 0, shape.NumElements())
	for o := range outer {
		for _, idx := range indices {
			if idx < 0 {
				idx += int64(n)
			}
			if idx < 0 || idx >= int64(n) {
				return nil, fmt.Errorf("Gather: index %d out of range for dimension %d", idx, n)
			}
			for i := range inner {
				src = append(src, (o*n+int(idx))*inner+i)
			}
		}
	}
	out, err := tensor.Take(data, shape, src)
	if err != nil {
		return nil, fmt.Errorf("Gather: %w", err)
	}
	return one(out), nil
}

// handleExpand broadcasts the input to a shape given as an int64 tensor.
func handleExpand(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	dims, err := inputs[1].Int64s()
	if err != nil {
		return nil, fmt.Errorf("Expand: shape: %w", err)
	}
	target := make(tensor.Shape, len(dims))
	for i, d := range dims {
		target[i] = int(d)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("Expand: shape: %w", err)
	}
	shape, err := tensor.BroadcastShapes(inputs[0].Shape(), target)
	if err != nil {
		return nil, fmt.Errorf("Expand: %w", err)
	}
	out, err := tensor.Take(inputs[0], shape, tensor.BroadcastOffsets(inputs[0].Shape(), shape))
	if err != nil {
		return nil, fmt.Errorf("Expand: %w", err)
	}
	return one(out), nil
}
