package tensor

import (
	"fmt"
	"iter"

	"github.com/pkg/errors"
)

// CoordRows iterates the rows of a rank-2 integral tensor of shape (N, D),
// each row being one D-dimensional coordinate.
//
// Rows are addressed through the tensor's own row and column strides, so
// transposed or otherwise strided coordinate buffers decode correctly.
type CoordRows struct {
	at        func(i int) int
	n, rank   int
	rowStride int
	colStride int
}

// NewCoordRows wraps a (N, D) Int32 or Int64 tensor.
func NewCoordRows(coords *RawTensor) (*CoordRows, error) {
	shape := coords.Shape()
	if len(shape) != 2 {
		return nil, errors.Wrapf(ErrInvalidShape, "coordinates must be rank 2 (N, D), got %v", shape)
	}

	rows := &CoordRows{
		n:         shape[0],
		rank:      shape[1],
		rowStride: coords.Strides()[0],
		colStride: coords.Strides()[1],
	}
	switch coords.DType() {
	case Int64:
		data := coords.AsInt64()
		rows.at = func(i int) int { return int(data[i]) }
	case Int32:
		data := coords.AsInt32()
		rows.at = func(i int) int { return int(data[i]) }
	default:
		return nil, errors.Wrapf(ErrDTypeMismatch, "coordinates must be int32 or int64, got %s", coords.DType())
	}
	return rows, nil
}

// Len returns the number of coordinate rows.
func (r *CoordRows) Len() int {
	return r.n
}

// Rank returns the length of each coordinate row.
func (r *CoordRows) Rank() int {
	return r.rank
}

// Row decodes row i into dst (reallocated if too short) and returns it.
// Panics if i is out of range.
func (r *CoordRows) Row(i int, dst []int) []int {
	if i < 0 || i >= r.n {
		panic(fmt.Sprintf("coordinate row %d out of range [0, %d)", i, r.n))
	}
	if cap(dst) < r.rank {
		dst = make([]int, r.rank)
	}
	dst = dst[:r.rank]
	base := i * r.rowStride
	for d := range dst {
		dst[d] = r.at(base + d*r.colStride)
	}
	return dst
}

// All yields every row in order. The yielded slice is reused between
// iterations and must be copied if retained.
func (r *CoordRows) All() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		row := make([]int, r.rank)
		for i := 0; i < r.n; i++ {
			if !yield(i, r.Row(i, row)) {
				return
			}
		}
	}
}

// Offsets decodes every row into a flat offset into a buffer of shape with
// the given strides, asserting each coordinate lies inside shape.
func (r *CoordRows) Offsets(shape Shape, strides []int) ([]int, error) {
	if r.rank != len(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "coordinate rank %d does not match output rank %d", r.rank, len(shape))
	}
	offsets := make([]int, r.n)
	for i, row := range r.All() {
		offset, err := CheckedOffset(row, shape, strides)
		if err != nil {
			return nil, errors.Wrapf(err, "coordinate row %d", i)
		}
		offsets[i] = offset
	}
	return offsets, nil
}
