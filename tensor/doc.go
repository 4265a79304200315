// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the host tensor types used by the sparse-to-dense
// operator and its backends.
//
// # Overview
//
// This package provides:
//   - RawTensor: reference-counted host buffer with shape, strides and offset
//   - Shape and the stride codec (Offset, CheckedOffset, ComputeStrides)
//   - Ghost: identity token keyed by buffer, used by the gradient ledger
//   - DataType and Device enumerations
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sparse/tensor"
//	)
//
//	func main() {
//	    values, _ := tensor.FromSlice([]float32{0, 1, 2}, tensor.Shape{3}, tensor.CPU)
//	    coords, _ := tensor.FromSlice([]int64{0, 0, 1, 1, 2, 2}, tensor.Shape{3, 2}, tensor.CPU)
//	    _ = tensor.Offset([]int{2, 2}, tensor.Shape{3, 3}.ComputeStrides()) // 8
//	}
//
// # Supported Data Types
//
//   - float16 (github.com/x448/float16), float32, float64
//   - int32, int64 (coordinates use either)
//
// # Views
//
// Views share the buffer, and therefore the identity, of the tensor they
// were taken from:
//
//	base, _ := tensor.FromSlice([]float32{1, -1, 2, -1}, tensor.Shape{4}, tensor.CPU)
//	every2nd, _ := base.View(tensor.Shape{2}, []int{2}, 0)
//	tensor.Values[float32](every2nd) // [1 2]
package tensor
