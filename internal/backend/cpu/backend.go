// Package cpu implements the host backend.
//
// Tensors live in host memory as *tensor.RawTensor. Every buffer the backend
// allocates is accounted for in MemoryStats and counted against an optional
// memory limit, so allocation failure surfaces as ErrOutOfMemory instead of
// a runtime crash. Forward scatters run in coordinate order; backward gathers
// may be split across goroutines because each value owns its gradient slot.
package cpu

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/parallel"
	"github.com/born-ml/sparse/internal/tensor"
)

// ErrOutOfMemory is returned when an allocation would exceed the memory limit.
var ErrOutOfMemory = errors.New("cpu: out of memory")

// CPUBackend runs tensor operations on the host.
type CPUBackend struct {
	device   tensor.Device
	limit    uint64 // 0 = unlimited
	parallel parallel.Config

	// Memory tracking
	memoryStats struct {
		liveBytes      uint64
		peakBytes      uint64
		totalAllocated uint64
		activeBuffers  int64
		allocations    uint64
		mu             sync.Mutex
	}
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithMemoryLimit caps the number of live bytes the backend may hold.
// Zero means no limit.
func WithMemoryLimit(bytes uint64) Option {
	return func(b *CPUBackend) {
		b.limit = bytes
	}
}

// WithParallelism sets how backward gathers are split across goroutines.
func WithParallelism(cfg parallel.Config) Option {
	return func(b *CPUBackend) {
		b.parallel = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	b := &CPUBackend{device: tensor.CPU, parallel: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(b)
	}
	klog.V(1).Infof("cpu: backend created (memory limit %d bytes)", b.limit)
	return b
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Zeros allocates a zero-initialized contiguous tensor.
func (cpu *CPUBackend) Zeros(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	n, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, err
	}
	size := uint64(n) //nolint:gosec // G115: ByteSize is non-negative
	if err := cpu.reserve(size); err != nil {
		return nil, err
	}
	raw, err := tensor.NewRawWithHook(shape, dtype, cpu.device, func(bytes int) {
		cpu.trackRelease(uint64(bytes))
	})
	if err != nil {
		cpu.trackRelease(size)
		return nil, err
	}
	return raw, nil
}

// AllocGrad allocates a zeroed gradient shaped like the tensor g stands for.
// It implements autodiff.Allocator.
func (cpu *CPUBackend) AllocGrad(g tensor.Ghost) (*tensor.RawTensor, error) {
	return cpu.Zeros(g.Shape(), g.DType())
}

// MemoryStats represents host memory usage of buffers allocated by the backend.
type MemoryStats struct {
	// Bytes currently held by live buffers
	LiveBytes uint64
	// Peak of LiveBytes since backend creation
	PeakBytes uint64
	// Total bytes allocated since backend creation
	TotalAllocatedBytes uint64
	// Number of currently live buffers
	ActiveBuffers int64
	// Number of allocations since backend creation
	Allocations uint64
	// Configured limit, 0 if unlimited
	LimitBytes uint64
}

// MemoryStats returns current memory usage statistics.
func (cpu *CPUBackend) MemoryStats() MemoryStats {
	cpu.memoryStats.mu.Lock()
	defer cpu.memoryStats.mu.Unlock()
	return MemoryStats{
		LiveBytes:           cpu.memoryStats.liveBytes,
		PeakBytes:           cpu.memoryStats.peakBytes,
		TotalAllocatedBytes: cpu.memoryStats.totalAllocated,
		ActiveBuffers:       cpu.memoryStats.activeBuffers,
		Allocations:         cpu.memoryStats.allocations,
		LimitBytes:          cpu.limit,
	}
}

// reserve records an allocation of size bytes, failing if it would exceed the limit.
func (cpu *CPUBackend) reserve(size uint64) error {
	cpu.memoryStats.mu.Lock()
	defer cpu.memoryStats.mu.Unlock()

	if cpu.limit > 0 && cpu.memoryStats.liveBytes+size > cpu.limit {
		return errors.Wrapf(ErrOutOfMemory, "allocating %d bytes with %d of %d in use",
			size, cpu.memoryStats.liveBytes, cpu.limit)
	}
	cpu.memoryStats.liveBytes += size
	cpu.memoryStats.totalAllocated += size
	cpu.memoryStats.activeBuffers++
	cpu.memoryStats.allocations++
	if cpu.memoryStats.liveBytes > cpu.memoryStats.peakBytes {
		cpu.memoryStats.peakBytes = cpu.memoryStats.liveBytes
	}
	return nil
}

// trackRelease records a buffer release.
func (cpu *CPUBackend) trackRelease(size uint64) {
	cpu.memoryStats.mu.Lock()
	defer cpu.memoryStats.mu.Unlock()

	if cpu.memoryStats.liveBytes >= size {
		cpu.memoryStats.liveBytes -= size
	} else {
		klog.Warningf("cpu: releasing %d bytes with only %d live", size, cpu.memoryStats.liveBytes)
		cpu.memoryStats.liveBytes = 0
	}
	cpu.memoryStats.activeBuffers--
}
