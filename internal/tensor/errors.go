package tensor

import (
	"errors"
	"fmt"
)

// Sentinel errors. Kernels return these (possibly wrapped with the op name)
// and callers match them with errors.Is.
var (
	// ErrBadShape is returned when a requested shape has no dimensions or a
	// negative dimension, or when data length disagrees with the shape.
	ErrBadShape = errors.New("tensor: invalid shape")

	// ErrShapeMismatch indicates incompatible operand shapes.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")

	// ErrOutOfRange indicates a flat or row index outside the tensor.
	ErrOutOfRange = errors.New("tensor: index out of range")
)

func opErrorf(op string, err error) error {
	return fmt.Errorf("tensor.%s: %w", op, err)
}
