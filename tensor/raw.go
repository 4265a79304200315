// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/sparse/internal/tensor"
)

// RawTensor is the low-level host tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), Strides(), DType(), Device()
//   - Zero-copy typed access via AsFloat32(), AsInt64(), etc.
//   - Borrowed views via View() and Reshape()
//   - Reference counting via Clone() and Release()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()  // Type-safe access
//	clone := raw.Clone()     // Shares buffer via reference counting
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-initialized contiguous tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a contiguous tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromSlice(data, shape, device)
}

// Values copies the logical elements of r out in row-major order.
func Values[T DType](r *RawTensor) []T {
	return tensor.Values[T](r)
}

// At returns the element at index. Panics if index is out of bounds.
func At[T DType](r *RawTensor, index ...int) T {
	return tensor.At[T](r, index...)
}

// FillFloat64 writes f(pos) to every logical element of r, converted to its dtype.
func FillFloat64(r *RawTensor, f func(pos int) float64) error {
	return tensor.FillFloat64(r, f)
}

// Float64s copies the logical elements of r out in row-major order as float64.
func Float64s(r *RawTensor) ([]float64, error) {
	return tensor.Float64s(r)
}
