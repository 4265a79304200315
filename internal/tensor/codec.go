package tensor

import "github.com/pkg/errors"

// Offset maps a logical multi-index to a flat buffer offset:
// the sum of index[i] * strides[i] over all dimensions.
//
// No bounds checking is performed; see CheckedOffset.
func Offset(index, strides []int) int {
	offset := 0
	for i, idx := range index {
		offset += idx * strides[i]
	}
	return offset
}

// CheckedOffset is Offset with an explicit bounds assertion against shape.
func CheckedOffset(index []int, shape Shape, strides []int) (int, error) {
	if len(strides) != len(shape) {
		return 0, errors.Wrapf(ErrInvalidShape, "%d strides for rank %d shape", len(strides), len(shape))
	}
	if !shape.Contains(index) {
		return 0, errors.Wrapf(ErrOutOfBounds, "index %v for shape %v", index, shape)
	}
	return Offset(index, strides), nil
}

// Span returns the number of elements a buffer needs to back the given
// shape/stride pair: the maximum reachable offset plus one.
func Span(shape Shape, strides []int) int {
	maxOffset := 0
	for i, dim := range shape {
		if strides[i] > 0 {
			maxOffset += (dim - 1) * strides[i]
		}
	}
	return maxOffset + 1
}

// IsContiguous reports whether strides are the default row-major strides for shape.
func IsContiguous(shape Shape, strides []int) bool {
	want := shape.ComputeStrides()
	for i := range want {
		if shape[i] != 1 && strides[i] != want[i] {
			return false
		}
	}
	return true
}

// Unravel converts a row-major linear position into a multi-index of shape,
// writing it into dst.
func Unravel(pos int, shape Shape, dst []int) []int {
	dst = dst[:len(shape)]
	for d := len(shape) - 1; d >= 0; d-- {
		dst[d] = pos % shape[d]
		pos /= shape[d]
	}
	return dst
}
