package operators

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/onnxbackend/internal/parallel"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	for _, op := range []string{"Add", "Sub", "Mul"} {
		r.Register(op, binaryHandler(op))
	}
	r.Register("Div", handleDiv)
	r.Register("Pow", handlePow)
	r.Register("Neg", unaryNumericHandler("Neg"))
	r.Register("Abs", unaryNumericHandler("Abs"))
	r.Register("Sqrt", unaryFloatHandler(math.Sqrt))
	r.Register("Exp", unaryFloatHandler(math.Exp))
	r.Register("Log", unaryFloatHandler(math.Log))
	r.Register("Reciprocal", unaryFloatHandler(func(v float64) float64 { return 1 / v }))
	r.Register("Floor", unaryFloatHandler(math.Floor))
	r.Register("Ceil", unaryFloatHandler(math.Ceil))
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
}

func binaryHandler(op string) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 2, 2); err != nil {
			return nil, err
		}
		out, err := binaryNumeric(op, inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		return one(out), nil
	}
}

func unaryNumericHandler(op string) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 1, 1); err != nil {
			return nil, err
		}
		out, err := unaryNumeric(op, inputs[0])
		if err != nil {
			return nil, err
		}
		return one(out), nil
	}
}

func unaryFloatHandler(f func(float64) float64) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkInputs(node, inputs, 1, 1); err != nil {
			return nil, err
		}
		out, err := unaryFloat(node.OpType, inputs[0], f)
		if err != nil {
			return nil, err
		}
		return one(out), nil
	}
}

func handleDiv(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	if !inputs[1].DType().IsFloat() && slices.Contains(inputs[1].Float64s(), 0) {
		return nil, fmt.Errorf("Div: integer division by zero")
	}
	return binaryHandler("Div")(ctx, node, inputs)
}

// handlePow allows the exponent to have a different type than the base; it
// is converted to the base type first.
func handlePow(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	exp, err := tensor.Cast(inputs[1], inputs[0].DType())
	if err != nil {
		return nil, fmt.Errorf("Pow: %w", err)
	}
	return binaryHandler("Pow")(ctx, node, []*tensor.Tensor{inputs[0], exp})
}

func handleMatMul(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	out, err := matMul(inputs[0], inputs[1])
	if err != nil {
		return nil, fmt.Errorf("MatMul: %w", err)
	}
	return one(out), nil
}

// matMul implements numpy.matmul semantics: 1-D operands are promoted to a
// matrix and the added dimension removed from the result, and leading batch
// dimensions broadcast.
//
//nolint:gocyclo,cyclop // Shape handling plus one branch per dtype.
func matMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("mismatched input types %s and %s", a.DType(), b.DType())
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return nil, fmt.Errorf("scalar operands are not allowed")
	}

	as, bs := a.Shape().Clone(), b.Shape().Clone()
	vecA, vecB := len(as) == 1, len(bs) == 1
	if vecA {
		as = tensor.Shape{1, as[0]}
	}
	if vecB {
		bs = tensor.Shape{bs[0], 1}
	}
	m, k := as[len(as)-2], as[len(as)-1]
	kb, n := bs[len(bs)-2], bs[len(bs)-1]
	if k != kb {
		return nil, fmt.Errorf("shape mismatch %v @ %v", a.Shape(), b.Shape())
	}

	batch, err := tensor.BroadcastShapes(as[:len(as)-2], bs[:len(bs)-2])
	if err != nil {
		return nil, err
	}
	aBatch := tensor.BroadcastOffsets(as[:len(as)-2], batch)
	bBatch := tensor.BroadcastOffsets(bs[:len(bs)-2], batch)

	shape := append(batch.Clone(), m, n)
	size := m * n
	var out *tensor.Tensor
	switch a.DType() {
	case tensor.Float32:
		ad, _ := tensor.Data[float32](a)
		bd, _ := tensor.Data[float32](b)
		y := make([]float32, len(aBatch)*size)
		parallel.For(len(aBatch), workers.WithMinChunk(1), func(i int) {
			gemm32(false, false, m, n, k, 1,
				ad[aBatch[i]*m*k:], bd[bBatch[i]*k*n:], 0, y[i*size:(i+1)*size])
		})
		out, err = tensor.New(shape, y)
	case tensor.Float64:
		ad, _ := tensor.Data[float64](a)
		bd, _ := tensor.Data[float64](b)
		y := make([]float64, len(aBatch)*size)
		parallel.For(len(aBatch), workers.WithMinChunk(1), func(i int) {
			gemm64(false, false, m, n, k, 1,
				ad[aBatch[i]*m*k:], bd[bBatch[i]*k*n:], 0, y[i*size:(i+1)*size])
		})
		out, err = tensor.New(shape, y)
	case tensor.Int32:
		out, err = tensor.New(shape, matMulBatched[int32](a, b, aBatch, bBatch, m, k, n))
	case tensor.Int64:
		out, err = tensor.New(shape, matMulBatched[int64](a, b, aBatch, bBatch, m, k, n))
	case tensor.Uint8:
		out, err = tensor.New(shape, matMulBatched[uint8](a, b, aBatch, bBatch, m, k, n))
	case tensor.Int8:
		out, err = tensor.New(shape, matMulBatched[int8](a, b, aBatch, bBatch, m, k, n))
	default:
		return nil, fmt.Errorf("unsupported type %s", a.DType())
	}
	if err != nil {
		return nil, err
	}

	// Drop the dimensions added for 1-D operands.
	final := shape[:len(batch)].Clone()
	if !vecA {
		final = append(final, m)
	}
	if !vecB {
		final = append(final, n)
	}
	return out.Reshape(final)
}

// matMulBatched is the integer fallback; BLAS covers only floats.
func matMulBatched[T tensor.Numeric](a, b *tensor.Tensor, aBatch, bBatch []int, m, k, n int) []T {
	ad, _ := tensor.Data[T](a)
	bd, _ := tensor.Data[T](b)
	out := make([]T, len(aBatch)*m*n)
	parallel.For(len(aBatch), workers.WithMinChunk(1), func(bi int) {
		x := ad[aBatch[bi]*m*k:]
		y := bd[bBatch[bi]*k*n:]
		c := out[bi*m*n:]
		for i := range m {
			for j := range n {
				var sum T
				for l := range k {
					sum += x[i*k+l] * y[l*n+j]
				}
				c[i*n+j] = sum
			}
		}
	})
	return out
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// gemm32 computes c = alpha*op(a)*op(b) + beta*c for row-major m×n c.
func gemm32(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	ar, ac := m, k
	if transA {
		ar, ac = k, m
	}
	br, bc := k, n
	if transB {
		br, bc = n, k
	}
	if k == 0 {
		for i := range c {
			c[i] *= beta
		}
		return
	}
	blas32.Gemm(transpose(transA), transpose(transB), alpha,
		blas32.General{Rows: ar, Cols: ac, Stride: ac, Data: a[:ar*ac]},
		blas32.General{Rows: br, Cols: bc, Stride: bc, Data: b[:br*bc]},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

func gemm64(transA, transB bool, m, n, k int, alpha float64, a, b []float64, beta float64, c []float64) {
	if m == 0 || n == 0 {
		return
	}
	ar, ac := m, k
	if transA {
		ar, ac = k, m
	}
	br, bc := k, n
	if transB {
		br, bc = n, k
	}
	if k == 0 {
		for i := range c {
			c[i] *= beta
		}
		return
	}
	blas64.Gemm(transpose(transA), transpose(transB), alpha,
		blas64.General{Rows: ar, Cols: ac, Stride: ac, Data: a[:ar*ac]},
		blas64.General{Rows: br, Cols: bc, Stride: bc, Data: b[:br*bc]},
		beta,
		blas64.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

// handleGemm implements General Matrix Multiplication:
// Y = alpha*A'*B' + beta*C, where A' and B' are optionally transposed and C
// broadcasts to [M, N].
func handleGemm(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkInputs(node, inputs, 2, 3); err != nil {
		return nil, err
	}
	a, b, c := inputs[0], inputs[1], optionalInput(inputs, 2)
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("Gemm: inputs must be 2-D, got %v and %v", a.Shape(), b.Shape())
	}
	if a.DType() != b.DType() || (c != nil && c.DType() != a.DType()) {
		return nil, fmt.Errorf("Gemm: mismatched input types")
	}

	alpha := float64(GetAttrFloat(node, "alpha", 1.0))
	beta := float64(GetAttrFloat(node, "beta", 1.0))
	transA := GetAttrInt(node, "transA", 0) != 0
	transB := GetAttrInt(node, "transB", 0) != 0

	m, k := a.Shape()[0], a.Shape()[1]
	if transA {
		m, k = k, m
	}
	kb, n := b.Shape()[0], b.Shape()[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, fmt.Errorf("Gemm: shape mismatch %v @ %v (transA=%t, transB=%t)", a.Shape(), b.Shape(), transA, transB)
	}
	shape := tensor.Shape{m, n}

	// Start from C broadcast to the output so BLAS can accumulate into it.
	var bias []int
	if c != nil {
		if !tensor.BroadcastsTo(c.Shape(), shape) {
			return nil, fmt.Errorf("Gemm: C of shape %v cannot broadcast to %v", c.Shape(), shape)
		}
		bias = tensor.BroadcastOffsets(c.Shape(), shape)
	} else {
		beta = 0
	}

	var (
		out *tensor.Tensor
		err error
	)
	switch a.DType() {
	case tensor.Float32:
		ad, _ := tensor.Data[float32](a)
		bd, _ := tensor.Data[float32](b)
		y := make([]float32, m*n)
		if c != nil {
			cd, _ := tensor.Data[float32](c)
			for i, off := range bias {
				y[i] = cd[off]
			}
		}
		gemm32(transA, transB, m, n, k, float32(alpha), ad, bd, float32(beta), y)
		out, err = tensor.New(shape, y)
	case tensor.Float64:
		ad, _ := tensor.Data[float64](a)
		bd, _ := tensor.Data[float64](b)
		y := make([]float64, m*n)
		if c != nil {
			cd, _ := tensor.Data[float64](c)
			for i, off := range bias {
				y[i] = cd[off]
			}
		}
		gemm64(transA, transB, m, n, k, alpha, ad, bd, beta, y)
		out, err = tensor.New(shape, y)
	default:
		return nil, fmt.Errorf("Gemm: unsupported type %s", a.DType())
	}
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
