// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/sparse/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for tensor element types.
// Supported types: float16.Float16, float32, float64, int32, int64.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Float16 DataType = tensor.Float16
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Ghost is the identity token of a tensor buffer.
type Ghost = tensor.Ghost

// Common errors.
var (
	ErrInvalidShape  = tensor.ErrInvalidShape
	ErrOutOfBounds   = tensor.ErrOutOfBounds
	ErrDTypeMismatch = tensor.ErrDTypeMismatch
)

// ParseDataType parses a dtype name such as "float32".
func ParseDataType(name string) (DataType, bool) {
	return tensor.ParseDataType(name)
}

// Offset returns the flat buffer offset of index: the sum of index[i] * strides[i].
// The index is not bounds-checked; see CheckedOffset.
func Offset(index, strides []int) int {
	return tensor.Offset(index, strides)
}

// CheckedOffset is Offset with the index asserted to lie inside shape.
func CheckedOffset(index []int, shape Shape, strides []int) (int, error) {
	return tensor.CheckedOffset(index, shape, strides)
}

// ValidateSparse checks that values of shape values and coordinates of shape
// coords and type coordsDType can be materialized into shape out.
func ValidateSparse(values, coords Shape, coordsDType DataType, out Shape) error {
	return tensor.ValidateSparse(values, coords, coordsDType, out)
}
