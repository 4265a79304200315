//go:build windows

// Package webgpu implements the accelerator backend on WebGPU compute shaders.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Tensors live in device buffers as *DeviceTensor. Kernels run one
// invocation per value in workgroups of 128 and are compiled once per
// (element type, module) and cached on the Backend.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/tensor"
)

// kernel is a compiled module and the pipeline for its entry point.
type kernel struct {
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

// Backend implements the from_sparse kernels on GPU using WebGPU.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Kernel module cache keyed by (dtype, module)
	kernels *registry[kernel]

	// Device info
	adapterInfo *wgpu.AdapterInfo

	// Staging buffers for readback
	stagingPool *BufferPool

	opts options

	// Memory tracking
	memoryStats struct {
		liveBytes           uint64
		totalAllocatedBytes uint64
		peakMemoryBytes     uint64
		activeBuffers       int64
		mu                  sync.RWMutex
	}

	// Command batching: kernel launches are accumulated and submitted
	// together, at the latest before any readback.
	pendingCommands []*wgpu.CommandBuffer
	pendingMu       sync.Mutex
}

// New creates a new WebGPU backend.
// Returns ErrNotAvailable if WebGPU is not available or initialization fails.
func New(opts ...Option) (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = errors.Wrapf(ErrNotAvailable, "native library: %v", r)
		}
	}()

	o := newOptions(opts)
	power := wgpu.PowerPreferenceHighPerformance
	if o.powerPreference == LowPower {
		power = wgpu.PowerPreferenceLowPower
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: power,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrapf(ErrNotAvailable, "request adapter: %v", adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(ErrNotAvailable, "request device: %v", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(ErrNotAvailable, "no device queue")
	}

	b := &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: &adapterInfo,
		stagingPool: NewBufferPool(device),
		opts:        o,
	}
	b.kernels = newRegistry(b.loadKernel)

	klog.V(1).Infof("webgpu: backend created on %s (%s)", b.Name(), o.powerPreference)
	return b, nil
}

// loadKernel renders, compiles and builds the pipeline for one module.
// Shader creation panics inside the bindings on invalid WGSL; that is
// reported as a load error.
func (b *Backend) loadKernel(key moduleKey) (k kernel, err error) {
	src, err := kernelSource(key.dtype, key.module)
	if err != nil {
		return kernel{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrKernelLoad, "%s: %v", key, r)
		}
	}()

	shader := b.device.CreateShaderModuleWGSL(src)
	if shader == nil {
		return kernel{}, errors.Wrapf(ErrKernelLoad, "%s: shader compilation failed", key)
	}
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, key.module)
	if pipeline == nil {
		shader.Release()
		return kernel{}, errors.Wrapf(ErrKernelLoad, "%s: pipeline creation failed", key)
	}
	return kernel{shader: shader, pipeline: pipeline}, nil
}

// queueCommand adds a command buffer to the pending queue for batch submission.
// Launches on the one queue execute in submission order.
func (b *Backend) queueCommand(cmdBuffer *wgpu.CommandBuffer) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	b.pendingCommands = append(b.pendingCommands, cmdBuffer)

	// Auto-flush if batch size limit is reached (0 = no limit)
	if b.opts.maxBatchSize > 0 && len(b.pendingCommands) >= b.opts.maxBatchSize {
		b.flushCommandsLocked()
	}
}

// flushCommands submits all pending command buffers to the GPU queue.
// This is called automatically before reading data from GPU.
func (b *Backend) flushCommands() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.flushCommandsLocked()
}

// flushCommandsLocked submits all pending command buffers (must hold pendingMu lock).
func (b *Backend) flushCommandsLocked() {
	if len(b.pendingCommands) == 0 {
		return
	}
	b.queue.Submit(b.pendingCommands...)
	b.pendingCommands = b.pendingCommands[:0]
}

// FlushCommands submits all pending command buffers to the GPU queue.
func (b *Backend) FlushCommands() {
	b.flushCommands()
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.flushCommands()

	if b.stagingPool != nil {
		b.stagingPool.Clear()
		b.stagingPool = nil
	}

	b.kernels.Drain(func(k kernel) {
		k.pipeline.Release()
		k.shader.Release()
	})

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Name, b.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// HasKernel reports whether the module is compiled for dtype.
func (b *Backend) HasKernel(dtype tensor.DataType, module string) bool {
	return b.kernels.Has(dtype, module)
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	// Bytes held by live device tensors
	LiveBytes uint64
	// Total bytes allocated since backend creation
	TotalAllocatedBytes uint64
	// Peak of LiveBytes
	PeakMemoryBytes uint64
	// Number of currently active buffers
	ActiveBuffers int64
	// Configured limit, 0 if unlimited
	LimitBytes uint64
	// Staging pool statistics
	PoolAllocated uint64
	PoolReleased  uint64
	PoolHits      uint64
	PoolMisses    uint64
	PooledBuffers int
}

// MemoryStats returns current GPU memory usage statistics.
func (b *Backend) MemoryStats() MemoryStats {
	b.memoryStats.mu.RLock()
	stats := MemoryStats{
		LiveBytes:           b.memoryStats.liveBytes,
		TotalAllocatedBytes: b.memoryStats.totalAllocatedBytes,
		PeakMemoryBytes:     b.memoryStats.peakMemoryBytes,
		ActiveBuffers:       b.memoryStats.activeBuffers,
		LimitBytes:          b.opts.memoryLimit,
	}
	b.memoryStats.mu.RUnlock()

	if b.stagingPool != nil {
		stats.PoolAllocated, stats.PoolReleased, stats.PoolHits, stats.PoolMisses, stats.PooledBuffers = b.stagingPool.Stats()
	}
	return stats
}

// trackBufferAllocation records a buffer allocation, failing with
// ErrOutOfMemory if it would exceed the memory limit.
func (b *Backend) trackBufferAllocation(size uint64) error {
	b.memoryStats.mu.Lock()
	defer b.memoryStats.mu.Unlock()

	if limit := b.opts.memoryLimit; limit > 0 && b.memoryStats.liveBytes+size > limit {
		return errors.Wrapf(ErrOutOfMemory, "allocating %d bytes with %d of %d in use",
			size, b.memoryStats.liveBytes, limit)
	}
	b.memoryStats.liveBytes += size
	b.memoryStats.totalAllocatedBytes += size
	b.memoryStats.activeBuffers++
	if b.memoryStats.liveBytes > b.memoryStats.peakMemoryBytes {
		b.memoryStats.peakMemoryBytes = b.memoryStats.liveBytes
	}
	return nil
}

// trackBufferRelease records a buffer release in memory statistics.
func (b *Backend) trackBufferRelease(size uint64) {
	b.memoryStats.mu.Lock()
	defer b.memoryStats.mu.Unlock()

	if b.memoryStats.liveBytes >= size {
		b.memoryStats.liveBytes -= size
	}
	b.memoryStats.activeBuffers--
}
