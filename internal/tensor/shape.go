package tensor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid: all dimensions > 0 and an element
// count that fits in an int.
func (s Shape) Validate() error {
	n := 1
	for i, dim := range s {
		if dim <= 0 {
			return errors.Wrapf(ErrInvalidShape, "dimension at index %d is %d (must be > 0)", i, dim)
		}
		if n > math.MaxInt/dim {
			return errors.Wrapf(ErrInvalidShape, "shape %v has more than %d elements", s, math.MaxInt)
		}
		n *= dim
	}
	return nil
}

// ByteSize validates the shape and returns the size in bytes of a contiguous
// tensor of dtype with this shape.
func (s Shape) ByteSize(dtype DataType) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	n, size := s.NumElements(), dtype.Size()
	if size > 0 && n > math.MaxInt/size {
		return 0, errors.Wrapf(ErrInvalidShape, "shape %v of %s overflows the byte size", s, dtype)
	}
	return n * size, nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// String renders the shape as (d0, d1, ...).
func (s Shape) String() string {
	out := "("
	for i, dim := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(dim)
	}
	return out + ")"
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Contains reports whether index addresses an element inside the shape.
func (s Shape) Contains(index []int) bool {
	if len(index) != len(s) {
		return false
	}
	for i, idx := range index {
		if idx < 0 || idx >= s[i] {
			return false
		}
	}
	return true
}
