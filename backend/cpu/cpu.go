// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/sparse/autodiff"
	internalcpu "github.com/born-ml/sparse/internal/backend/cpu"
	"github.com/born-ml/sparse/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// MemoryStats represents host memory usage of buffers allocated by the backend.
type MemoryStats = internalcpu.MemoryStats

// Traced is a host tensor that may carry a tape.
type Traced = internalcpu.Traced

// ErrOutOfMemory is returned when an allocation would exceed the memory limit.
var ErrOutOfMemory = internalcpu.ErrOutOfMemory

// Compile-time check that Backend allocates host gradients.
var _ autodiff.Allocator[*tensor.RawTensor] = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New(cpu.WithMemoryLimit(1 << 30))
//	dense := backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{5, 5})
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithMemoryLimit caps the number of live bytes the backend may hold.
func WithMemoryLimit(bytes uint64) Option {
	return internalcpu.WithMemoryLimit(bytes)
}
