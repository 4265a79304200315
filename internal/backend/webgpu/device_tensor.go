//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/tensor"
)

// DeviceTensor is a contiguous row-major tensor resident in a GPU buffer.
// It is exclusively owned: Release frees the buffer.
type DeviceTensor struct {
	backend *Backend
	buffer  *wgpu.Buffer
	id      uuid.UUID
	shape   tensor.Shape
	dtype   tensor.DataType
	size    uint64 // Buffer size in bytes

	mu       sync.Mutex
	released bool
}

// newDeviceTensor accounts for and creates the buffer of a device tensor.
// data, if non-nil, is the initial contents; otherwise the buffer is zeroed.
func (b *Backend) newDeviceTensor(shape tensor.Shape, dtype tensor.DataType, data []byte) (*DeviceTensor, error) {
	if _, err := wgslType(dtype); err != nil {
		return nil, err
	}
	n, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, err
	}
	size := uint64(n) //nolint:gosec // G115: ByteSize is non-negative
	if err := b.trackBufferAllocation(size); err != nil {
		return nil, err
	}

	var buffer *wgpu.Buffer
	if data != nil {
		buffer = b.createBuffer(data, storageUsage)
	} else {
		buffer = b.createZeroBuffer(size)
	}
	return &DeviceTensor{
		backend: b,
		buffer:  buffer,
		id:      uuid.New(),
		shape:   shape.Clone(),
		dtype:   dtype,
		size:    size,
	}, nil
}

// Zeros allocates a zero-initialized device tensor.
func (b *Backend) Zeros(shape tensor.Shape, dtype tensor.DataType) (*DeviceTensor, error) {
	return b.newDeviceTensor(shape, dtype, nil)
}

// AllocGrad allocates a zeroed gradient shaped like the tensor g stands for.
// It implements autodiff.Allocator.
func (b *Backend) AllocGrad(g tensor.Ghost) (*DeviceTensor, error) {
	return b.Zeros(g.Shape(), g.DType())
}

// Upload copies a host tensor to the device. Strided host tensors are
// compacted to row-major order.
func (b *Backend) Upload(raw *tensor.RawTensor) (*DeviceTensor, error) {
	data, err := hostBytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "upload")
	}
	return b.newDeviceTensor(raw.Shape(), raw.DType(), data)
}

// UploadCoordinates copies an (N, D) int32 or int64 host coordinate tensor
// to the device as int32.
func (b *Backend) UploadCoordinates(raw *tensor.RawTensor) (*DeviceTensor, error) {
	coords, err := coordinatesInt32(raw)
	if err != nil {
		return nil, errors.Wrap(err, "upload coordinates")
	}
	return b.newDeviceTensor(raw.Shape(), tensor.Int32, int32Bytes(coords))
}

// Shape returns the tensor dimensions.
func (t *DeviceTensor) Shape() tensor.Shape {
	return t.shape
}

// Strides returns the row-major strides of the tensor.
func (t *DeviceTensor) Strides() []int {
	return t.shape.ComputeStrides()
}

// DType returns the element type.
func (t *DeviceTensor) DType() tensor.DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *DeviceTensor) NumElements() int {
	return t.shape.NumElements()
}

// ByteSize returns the buffer size in bytes.
func (t *DeviceTensor) ByteSize() uint64 {
	return t.size
}

// ID returns the buffer identity.
func (t *DeviceTensor) ID() uuid.UUID {
	return t.id
}

// Ghost returns the identity token of the tensor.
func (t *DeviceTensor) Ghost() tensor.Ghost {
	return tensor.NewGhost(t.id, t.shape, t.dtype, tensor.WebGPU)
}

// ToHost copies the tensor back into a new host tensor, after all queued
// launches have run.
func (t *DeviceTensor) ToHost() (*tensor.RawTensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	data, err := t.backend.readBuffer(t.buffer, t.size)
	if err != nil {
		return nil, err
	}
	raw, err := tensor.NewRaw(t.shape, t.dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.Data(), data)
	return raw, nil
}

// Write overwrites the tensor with the contents of a host tensor of the
// same shape and dtype.
func (t *DeviceTensor) Write(raw *tensor.RawTensor) error {
	if err := t.checkLive(); err != nil {
		return err
	}
	if !raw.Shape().Equal(t.shape) || raw.DType() != t.dtype {
		return errors.Wrapf(tensor.ErrInvalidShape, "write %s%v into %s%v", raw.DType(), raw.Shape(), t.dtype, t.shape)
	}
	data, err := hostBytes(raw)
	if err != nil {
		return err
	}
	t.backend.copyIntoBuffer(t.buffer, data)
	return nil
}

// Release frees the device buffer. It is safe to call more than once.
func (t *DeviceTensor) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.buffer.Release()
	t.backend.trackBufferRelease(t.size)
	klog.V(3).Infof("webgpu: released %s%v (%d bytes)", t.dtype, t.shape, t.size)
}

// String returns a human-readable description of the tensor.
func (t *DeviceTensor) String() string {
	return fmt.Sprintf("DeviceTensor[%s]%v", t.dtype, t.shape)
}

func (t *DeviceTensor) checkLive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return errors.Errorf("webgpu: %s used after release", t)
	}
	return nil
}
