package tensor

import (
	"math"
	"math/rand/v2"
)

// binary applies f elementwise. b may be a one-element tensor, in which case
// it is broadcast across a.
func binary(op string, a, b *Tensor, f func(x, y float64) float64) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, opErrorf(op, ErrShapeMismatch)
	}
	out := &Tensor{Name: op, shape: a.Shape(), data: make([]float64, len(a.data))}
	switch {
	case a.SameShape(b):
		for i, x := range a.data {
			out.data[i] = f(x, b.data[i])
		}
	case len(b.data) == 1:
		y := b.data[0]
		for i, x := range a.data {
			out.data[i] = f(x, y)
		}
	default:
		return nil, opErrorf(op, ErrShapeMismatch)
	}
	return out, nil
}

func unary(op string, a *Tensor, f func(x float64) float64) *Tensor {
	out := &Tensor{Name: op, shape: a.Shape(), data: make([]float64, len(a.data))}
	for i, x := range a.data {
		out.data[i] = f(x)
	}
	return out
}

// Add returns a + b.
func Add(a, b *Tensor) (*Tensor, error) {
	return binary("Add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binary("Sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns the elementwise product.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binary("Mul", a, b, func(x, y float64) float64 { return x * y })
}

// Div returns a / b. Division by zero yields 0 rather than Inf or NaN.
func Div(a, b *Tensor) (*Tensor, error) {
	return binary("Div", a, b, func(x, y float64) float64 {
		if y == 0 {
			return 0
		}
		return x / y
	})
}

// Abs returns |a|.
func Abs(a *Tensor) *Tensor { return unary("Abs", a, math.Abs) }

// Sqrt returns sqrt(a); negative inputs map to 0.
func Sqrt(a *Tensor) *Tensor {
	return unary("Sqrt", a, func(x float64) float64 {
		if x <= 0 {
			return 0
		}
		return math.Sqrt(x)
	})
}

// Log returns ln(a); non-positive inputs map to 0.
func Log(a *Tensor) *Tensor {
	return unary("Log", a, func(x float64) float64 {
		if x <= 0 {
			return 0
		}
		return math.Log(x)
	})
}

// Exp returns e^a.
func Exp(a *Tensor) *Tensor { return unary("Exp", a, math.Exp) }

// Sin returns sin(a).
func Sin(a *Tensor) *Tensor { return unary("Sin", a, math.Sin) }

// Cos returns cos(a).
func Cos(a *Tensor) *Tensor { return unary("Cos", a, math.Cos) }

// Scale returns k * a.
func Scale(a *Tensor, k float64) *Tensor {
	return unary("Scale", a, func(x float64) float64 { return x * k })
}

// Clamp returns a with every element limited to [lo, hi].
func Clamp(a *Tensor, lo, hi float64) *Tensor {
	return unary("Clamp", a, func(x float64) float64 {
		return math.Max(lo, math.Min(hi, x))
	})
}

// AddScalarInPlace adds v to every element of a.
func AddScalarInPlace(a *Tensor, v float64) {
	for i := range a.data {
		a.data[i] += v
	}
}

// Sum reduces a to the sum of its elements.
func Sum(a *Tensor) float64 {
	s := 0.0
	for _, x := range a.data {
		s += x
	}
	return s
}

// Mean reduces a to its arithmetic mean, or 0 when empty.
func Mean(a *Tensor) float64 {
	if len(a.data) == 0 {
		return 0
	}
	return Sum(a) / float64(len(a.data))
}

// Max returns the largest element, or 0 when empty.
func Max(a *Tensor) float64 {
	if len(a.data) == 0 {
		return 0
	}
	m := a.data[0]
	for _, x := range a.data[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Norm returns the L2 norm of a.
func Norm(a *Tensor) float64 {
	s := 0.0
	for _, x := range a.data {
		s += x * x
	}
	return math.Sqrt(s)
}

// Dot returns the inner product of two equally sized tensors.
func Dot(a, b *Tensor) (float64, error) {
	if len(a.data) != len(b.data) {
		return 0, opErrorf("Dot", ErrShapeMismatch)
	}
	s := 0.0
	for i, x := range a.data {
		s += x * b.data[i]
	}
	return s, nil
}

// MatMul multiplies a [n] or [m,n] tensor by a [n,p] tensor, producing [p]
// or [m,p]. Loop order is i-k-j so the inner loop walks both rows linearly.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if b.Rank() != 2 {
		return nil, opErrorf("MatMul", ErrShapeMismatch)
	}
	n, p := b.shape[0], b.shape[1]

	var m int
	var outShape []int
	switch a.Rank() {
	case 1:
		m, outShape = 1, []int{p}
		if a.shape[0] != n {
			return nil, opErrorf("MatMul", ErrShapeMismatch)
		}
	case 2:
		m, outShape = a.shape[0], []int{a.shape[0], p}
		if a.shape[1] != n {
			return nil, opErrorf("MatMul", ErrShapeMismatch)
		}
	default:
		return nil, opErrorf("MatMul", ErrShapeMismatch)
	}

	out := &Tensor{Name: "MatMul", shape: outShape, data: make([]float64, m*p)}
	for i := 0; i < m; i++ {
		row := out.data[i*p : (i+1)*p]
		for k := 0; k < n; k++ {
			aik := a.data[i*n+k]
			if aik == 0 {
				continue
			}
			bk := b.data[k*p : (k+1)*p]
			for j := range row {
				row[j] += aik * bk[j]
			}
		}
	}
	return out, nil
}

// Softmax normalizes a into weights that sum to 1. The maximum is subtracted
// before exponentiating so large scores cannot overflow. An empty input gives
// an empty output. A +Inf maximum splits the weight evenly over the +Inf
// entries; an all -Inf input is uniform.
func Softmax(a *Tensor) *Tensor {
	out := &Tensor{Name: "Softmax", shape: a.Shape(), data: make([]float64, len(a.data))}
	if len(a.data) == 0 {
		return out
	}
	m := Max(a)
	if math.IsInf(m, 0) {
		count := 0
		for _, x := range a.data {
			if x == m {
				count++
			}
		}
		for i, x := range a.data {
			if x == m {
				out.data[i] = 1 / float64(count)
			}
		}
		return out
	}
	sum := 0.0
	for i, x := range a.data {
		e := math.Exp(x - m)
		out.data[i] = e
		sum += e
	}
	// sum >= 1 because the max element contributes exp(0).
	for i := range out.data {
		out.data[i] /= sum
	}
	return out
}

// XavierUniform fills a with samples from U(-limit, limit) where
// limit = sqrt(6 / (fanIn + fanOut)).
func XavierUniform(a *Tensor, fanIn, fanOut int, rng *rand.Rand) {
	if fanIn+fanOut <= 0 {
		a.Fill(0)
		return
	}
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range a.data {
		a.data[i] = (rng.Float64()*2 - 1) * limit
	}
}
