// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation through
// a tape of backward closures and a gradient ledger keyed by tensor identity.
//
// Example:
//
//	import (
//	    "github.com/born-ml/sparse/autodiff"
//	    "github.com/born-ml/sparse/backend/cpu"
//	    "github.com/born-ml/sparse/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    values, _ := tensor.FromSlice([]float32{0, 1, 2, 3, 4}, tensor.Shape{5}, tensor.CPU)
//	    coords, _ := tensor.FromSlice([]int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, tensor.Shape{5, 2}, tensor.CPU)
//
//	    dense := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{5, 5})
//	    grads, _ := autodiff.Backward(dense, backend.SeedFlatIndex)
//	    gv, _ := grads.Get(values.Ghost()) // [0 6 12 18 24]
//	}
package autodiff

import (
	"github.com/born-ml/sparse/internal/autodiff"
)

// Tensor is any tensor handle that can produce an identity token.
type Tensor = autodiff.Tensor

// Allocator creates zeroed gradient buffers; each backend implements it.
type Allocator[T Tensor] = autodiff.Allocator[T]

// Gradients is the gradient ledger of one backward pass.
type Gradients[T Tensor] = autodiff.Gradients[T]

// Tape records backward closures and runs them in reverse, once.
type Tape[T Tensor] = autodiff.Tape[T]

// BackwardFunc is a backward closure registered on a Tape.
type BackwardFunc[T Tensor] = autodiff.BackwardFunc[T]

// SeedFunc fills the initial output gradient.
type SeedFunc[T Tensor] = autodiff.SeedFunc[T]

// Traced is a tensor handle that optionally owns a tape.
type Traced[T Tensor] = autodiff.Traced[T]

// Common errors.
var (
	ErrTapeConsumed  = autodiff.ErrTapeConsumed
	ErrGhostMismatch = autodiff.ErrGhostMismatch
	ErrNoGradient    = autodiff.ErrNoGradient
)

// NewGradients creates an empty ledger backed by alloc.
func NewGradients[T Tensor](alloc Allocator[T]) *Gradients[T] {
	return autodiff.NewGradients(alloc)
}

// NewTape creates an empty tape whose ledger allocates through alloc.
func NewTape[T Tensor](alloc Allocator[T]) *Tape[T] {
	return autodiff.NewTape(alloc)
}

// Trace starts tracing value with a fresh tape.
func Trace[T Tensor](value T, alloc Allocator[T]) *Traced[T] {
	return autodiff.Trace(value, alloc)
}

// TraceWith attaches an existing tape to value.
func TraceWith[T Tensor](value T, tape *Tape[T]) *Traced[T] {
	return autodiff.TraceWith(value, tape)
}

// Constant wraps value without a tape.
func Constant[T Tensor](value T) *Traced[T] {
	return autodiff.Constant(value)
}

// PutTape transfers tape ownership to value.
func PutTape[T Tensor](value T, tape *Tape[T]) *Traced[T] {
	return autodiff.PutTape(value, tape)
}

// Backward seeds the gradient of out and executes its tape.
func Backward[T Tensor](out *Traced[T], seed SeedFunc[T]) (*Gradients[T], error) {
	return autodiff.Backward(out, seed)
}
