package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// asSlice returns the tensor storage span typed as []T.
// Panics if T does not match the tensor's dtype.
func asSlice[T DType](r *RawTensor) []T {
	var dummy T
	switch any(dummy).(type) {
	case float16.Float16:
		return any(r.AsFloat16()).([]T)
	case float32:
		return any(r.AsFloat32()).([]T)
	case float64:
		return any(r.AsFloat64()).([]T)
	case int32:
		return any(r.AsInt32()).([]T)
	case int64:
		return any(r.AsInt64()).([]T)
	default:
		panic("unsupported type")
	}
}

// Values copies the tensor's logical elements out in row-major order,
// honoring its strides.
func Values[T DType](r *RawTensor) []T {
	data := asSlice[T](r)
	if r.IsContiguous() {
		return append([]T(nil), data[:r.NumElements()]...)
	}

	out := make([]T, r.NumElements())
	index := make([]int, len(r.shape))
	for pos := range out {
		Unravel(pos, r.shape, index)
		out[pos] = data[Offset(index, r.stride)]
	}
	return out
}

// At returns the element at the given multi-index.
// Panics if the index is out of bounds.
func At[T DType](r *RawTensor, index ...int) T {
	offset, err := CheckedOffset(index, r.shape, r.stride)
	if err != nil {
		panic(fmt.Sprintf("at: %v", err))
	}
	return asSlice[T](r)[offset]
}

// SetAt stores value at the given multi-index.
// Panics if the index is out of bounds.
func SetAt[T DType](r *RawTensor, value T, index ...int) {
	offset, err := CheckedOffset(index, r.shape, r.stride)
	if err != nil {
		panic(fmt.Sprintf("set: %v", err))
	}
	asSlice[T](r)[offset] = value
}

// Fill writes f(pos) to every logical element, where pos is its row-major position.
func Fill[T DType](r *RawTensor, f func(pos int) T) {
	data := asSlice[T](r)
	index := make([]int, len(r.shape))
	for pos := 0; pos < r.NumElements(); pos++ {
		Unravel(pos, r.shape, index)
		data[Offset(index, r.stride)] = f(pos)
	}
}

// FillFloat64 writes f(pos) to every logical element, converted to the
// tensor's dtype. Integer dtypes truncate toward zero.
func FillFloat64(r *RawTensor, f func(pos int) float64) error {
	switch r.dtype {
	case Float32:
		Fill(r, func(pos int) float32 { return float32(f(pos)) })
	case Float64:
		Fill(r, f)
	case Float16:
		Fill(r, func(pos int) float16.Float16 { return float16.Fromfloat32(float32(f(pos))) })
	case Int32:
		Fill(r, func(pos int) int32 { return int32(f(pos)) })
	case Int64:
		Fill(r, func(pos int) int64 { return int64(f(pos)) })
	default:
		return errors.Wrapf(ErrDTypeMismatch, "fill: unsupported dtype %s", r.dtype)
	}
	return nil
}

// Float64s copies the tensor's logical elements out in row-major order,
// widened to float64.
func Float64s(r *RawTensor) ([]float64, error) {
	switch r.dtype {
	case Float32:
		return widen(Values[float32](r)), nil
	case Float64:
		return Values[float64](r), nil
	case Float16:
		half := Values[float16.Float16](r)
		out := make([]float64, len(half))
		for i, h := range half {
			out[i] = float64(h.Float32())
		}
		return out, nil
	case Int32:
		return widen(Values[int32](r)), nil
	case Int64:
		return widen(Values[int64](r)), nil
	default:
		return nil, errors.Wrapf(ErrDTypeMismatch, "unsupported dtype %s", r.dtype)
	}
}

func widen[T float32 | int32 | int64](src []T) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// Contiguous returns a row-major tensor with the logical contents of r.
// An already contiguous r is returned as a new reference to the same buffer;
// otherwise the elements are copied. The caller releases the result.
func Contiguous(r *RawTensor) (*RawTensor, error) {
	if r.IsContiguous() {
		return r.Clone(), nil
	}
	switch r.dtype {
	case Float32:
		return FromSlice(Values[float32](r), r.shape, r.device)
	case Float64:
		return FromSlice(Values[float64](r), r.shape, r.device)
	case Float16:
		return FromSlice(Values[float16.Float16](r), r.shape, r.device)
	case Int32:
		return FromSlice(Values[int32](r), r.shape, r.device)
	case Int64:
		return FromSlice(Values[int64](r), r.shape, r.device)
	default:
		return nil, errors.Wrapf(ErrDTypeMismatch, "contiguous: unsupported dtype %s", r.dtype)
	}
}
