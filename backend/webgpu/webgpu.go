//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for the sparse-to-dense operator.
//
// Each value is written by one kernel invocation, in workgroups of 128.
// Compiled kernels are cached per (dtype, module) for the lifetime of the
// backend. Float32 and Int32 tensors are supported.
//
// Example:
//
//	import (
//	    "github.com/born-ml/sparse/autodiff"
//	    "github.com/born-ml/sparse/backend/webgpu"
//	    "github.com/born-ml/sparse/tensor"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    values, _ := gpu.Upload(hostValues)
//	    dense := gpu.FromSparse(autodiff.Trace(values, gpu), hostCoords, tensor.Shape{5, 5})
//	    result, _ := dense.Value().ToHost()
//	}
package webgpu

import (
	"github.com/born-ml/sparse/autodiff"
	internalwebgpu "github.com/born-ml/sparse/internal/backend/webgpu"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// DeviceTensor is a tensor resident in a GPU buffer.
type DeviceTensor = internalwebgpu.DeviceTensor

// Traced is a device tensor that may carry a tape.
type Traced = internalwebgpu.Traced

// Option configures a Backend.
type Option = internalwebgpu.Option

// PowerPreference selects the adapter class requested from the system.
type PowerPreference = internalwebgpu.PowerPreference

// MemoryStats reports GPU buffer usage.
type MemoryStats = internalwebgpu.MemoryStats

// Power preferences.
const (
	HighPerformance = internalwebgpu.HighPerformance
	LowPower        = internalwebgpu.LowPower
)

// Common errors.
var (
	ErrNotAvailable     = internalwebgpu.ErrNotAvailable
	ErrOutOfMemory      = internalwebgpu.ErrOutOfMemory
	ErrUnsupportedDType = internalwebgpu.ErrUnsupportedDType
	ErrKernelLoad       = internalwebgpu.ErrKernelLoad
	ErrLaunch           = internalwebgpu.ErrLaunch
)

// Compile-time check that Backend allocates device gradients.
var _ autodiff.Allocator[*DeviceTensor] = (*Backend)(nil)

// New creates a new WebGPU backend.
//
// This function initializes the WebGPU device and returns a backend
// ready for launches. Call Release() when done to free GPU resources.
//
// Returns ErrNotAvailable if no compatible adapter is found.
func New(opts ...Option) (*Backend, error) {
	return internalwebgpu.New(opts...)
}

// IsAvailable checks if WebGPU is available on the current system.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    gpu, _ := webgpu.New()
//	    defer gpu.Release()
//	} else {
//	    backend := cpu.New()
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// WithMemoryLimit caps the number of live device bytes.
func WithMemoryLimit(bytes uint64) Option {
	return internalwebgpu.WithMemoryLimit(bytes)
}

// WithPowerPreference selects the adapter class.
func WithPowerPreference(p PowerPreference) Option {
	return internalwebgpu.WithPowerPreference(p)
}

// WithMaxBatchSize sets how many launches are queued before a submit.
func WithMaxBatchSize(n int) Option {
	return internalwebgpu.WithMaxBatchSize(n)
}
