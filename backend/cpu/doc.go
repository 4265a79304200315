// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the sequential host backend.
//
// # Overview
//
// This package implements:
//   - FromSparse: scatter of values at (N, D) coordinates into a zeroed
//     dense tensor, last write wins on duplicate coordinates
//   - FromSparseFlat: the same with coordinates flattened to N*D entries
//   - the backward gather grad_values[i] += grad_output[coords[i]]
//   - host memory accounting with an optional limit
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sparse/autodiff"
//	    "github.com/born-ml/sparse/backend/cpu"
//	    "github.com/born-ml/sparse/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    dense := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{5, 5})
//	    grads, err := autodiff.Backward(dense, backend.SeedOnes)
//	}
//
// # Data Types
//
// Every tensor.DataType is supported. Float16 gradients accumulate in
// float32 and are rounded once per element.
//
// For GPU acceleration, see the webgpu package (Windows).
package cpu
