// Package tensor is the eager numeric backend used by the attention core.
//
// A Tensor is a named, shaped, mutable buffer of float64 values stored flat in
// row-major order. Every operation evaluates immediately: a result is readable
// as soon as the call returns. Operations never mutate their inputs unless the
// method name says so (Set, SetValue, Fill, AddScalarInPlace).
package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a named, shaped float64 buffer.
type Tensor struct {
	Name  string
	shape []int
	data  []float64
}

// New allocates a zero-filled tensor. Zero-sized dimensions are allowed,
// negative ones are not.
func New(name string, shape ...int) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, opErrorf("New", err)
	}
	return &Tensor{
		Name:  name,
		shape: append([]int(nil), shape...),
		data:  make([]float64, n),
	}, nil
}

// FromSlice wraps a copy of data in a tensor of the given shape.
func FromSlice(name string, data []float64, shape ...int) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, opErrorf("FromSlice", err)
	}
	if n != len(data) {
		return nil, opErrorf("FromSlice", ErrBadShape)
	}
	return &Tensor{
		Name:  name,
		shape: append([]int(nil), shape...),
		data:  append([]float64(nil), data...),
	}, nil
}

// Vector returns a 1-D tensor holding a copy of data.
func Vector(name string, data []float64) *Tensor {
	return &Tensor{
		Name:  name,
		shape: []int{len(data)},
		data:  append([]float64(nil), data...),
	}
}

// Scalar returns a one-element tensor of shape [1].
func Scalar(name string, v float64) *Tensor {
	return &Tensor{Name: name, shape: []int{1}, data: []float64{v}}
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, ErrBadShape
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, ErrBadShape
		}
		n *= d
	}
	return n, nil
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the live backing buffer. Writes through it mutate the tensor.
func (t *Tensor) Data() []float64 { return t.data }

// Values returns a copy of the elements.
func (t *Tensor) Values() []float64 {
	return append([]float64(nil), t.data...)
}

// At reads the element at flat index i.
func (t *Tensor) At(i int) (float64, error) {
	if i < 0 || i >= len(t.data) {
		return 0, opErrorf("At", ErrOutOfRange)
	}
	return t.data[i], nil
}

// Set writes v at flat index i.
func (t *Tensor) Set(i int, v float64) error {
	if i < 0 || i >= len(t.data) {
		return opErrorf("Set", ErrOutOfRange)
	}
	t.data[i] = v
	return nil
}

// Value reads the first element, or 0 for an empty tensor.
func (t *Tensor) Value() float64 {
	if len(t.data) == 0 {
		return 0
	}
	return t.data[0]
}

// SetValue writes the first element. Empty tensors are left untouched.
func (t *Tensor) SetValue(v float64) {
	if len(t.data) == 0 {
		return
	}
	t.data[0] = v
}

// SetData overwrites the elements with a copy of data.
func (t *Tensor) SetData(data []float64) error {
	if len(data) != len(t.data) {
		return opErrorf("SetData", ErrShapeMismatch)
	}
	copy(t.data, data)
	return nil
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Row returns a copy of row i of a 2-D tensor as a 1-D tensor.
func (t *Tensor) Row(i int) (*Tensor, error) {
	if len(t.shape) != 2 {
		return nil, opErrorf("Row", ErrShapeMismatch)
	}
	rows, cols := t.shape[0], t.shape[1]
	if i < 0 || i >= rows {
		return nil, opErrorf("Row", ErrOutOfRange)
	}
	return Vector(fmt.Sprintf("%s[%d]", t.Name, i), t.data[i*cols:(i+1)*cols]), nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Name:  t.Name,
		shape: append([]int(nil), t.shape...),
		data:  append([]float64(nil), t.data...),
	}
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for debugging.
func (t *Tensor) String() string {
	dims := make([]string, len(t.shape))
	for i, d := range t.shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s[%s]", t.Name, strings.Join(dims, "x"))
}
