package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted shared buffer.
// Its id is the identity every view and clone of the buffer shares.
type tensorBuffer struct {
	id       uuid.UUID
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
	onFree   func(bytes int)
}

// newTensorBuffer creates a new zeroed reference-counted buffer with refCount = 1.
func newTensorBuffer(size int, onFree func(bytes int)) *tensorBuffer {
	buf := &tensorBuffer{
		id:     uuid.New(),
		data:   make([]byte, size),
		onFree: onFree,
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for Clone and View).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) != 0 {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.data == nil {
		return
	}
	size := len(tb.data)
	tb.data = nil
	if tb.onFree != nil {
		tb.onFree(size)
	}
}

// isUnique returns true if this buffer has only one reference.
func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the low-level host tensor representation.
// Several RawTensors may share one buffer (views); each carries its own
// shape, strides and element offset into that buffer.
type RawTensor struct {
	buffer *tensorBuffer // Shared reference-counted buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides, in elements
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Element offset for views
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is zero-initialized and laid out row-major.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return NewRawWithHook(shape, dtype, device, nil)
}

// NewRawWithHook is NewRaw with a callback invoked with the buffer size in bytes
// once the last reference to the buffer is released.
func NewRawWithHook(shape Shape, dtype DataType, device Device, onFree func(bytes int)) (*RawTensor, error) {
	byteSize, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, errors.Wrap(err, "new tensor")
	}

	return &RawTensor{
		buffer: newTensorBuffer(byteSize, onFree),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromSlice creates a contiguous tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Wrapf(ErrInvalidShape, "shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, DataTypeOf[T](), device)
	if err != nil {
		return nil, err
	}
	copy(asSlice[T](raw), data)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// ID returns the identity of the underlying buffer.
func (r *RawTensor) ID() uuid.UUID {
	return r.buffer.id
}

// Offset returns the element offset of this tensor into its buffer.
func (r *RawTensor) Offset() int {
	return r.offset
}

// NumElements returns the total number of logical elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the logical size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// IsContiguous reports whether the tensor uses default row-major strides.
func (r *RawTensor) IsContiguous() bool {
	return IsContiguous(r.shape, r.stride)
}

// span returns the number of buffer elements reachable from the tensor's offset.
func (r *RawTensor) span() int {
	return Span(r.shape, r.stride)
}

// Data returns the raw bytes backing the tensor, starting at its offset and
// covering every element reachable through its strides.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	size := r.dtype.Size()
	start := r.offset * size
	return r.buffer.data[start : start+r.span()*size]
}

// elements returns a pointer to the first element reachable by the tensor.
func (r *RawTensor) elements(want DataType) unsafe.Pointer {
	if r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	if r.buffer.data == nil {
		panic("tensor buffer already released")
	}
	return unsafe.Pointer(&r.buffer.data[r.offset*r.dtype.Size()])
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by span()
	return unsafe.Slice((*float16.Float16)(r.elements(Float16)), r.span())
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by span()
	return unsafe.Slice((*float32)(r.elements(Float32)), r.span())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by span()
	return unsafe.Slice((*float64)(r.elements(Float64)), r.span())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by span()
	return unsafe.Slice((*int32)(r.elements(Int32)), r.span())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by span()
	return unsafe.Slice((*int64)(r.elements(Int64)), r.span())
}

// Clone creates a shallow copy of the RawTensor sharing the same buffer.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
	}
}

// View returns a borrowed view into the same buffer with its own shape and
// strides, starting offset elements past this tensor's offset.
//
// Returns ErrOutOfBounds if the view can reach past the end of the buffer.
func (r *RawTensor) View(shape Shape, strides []int, offset int) (*RawTensor, error) {
	if len(shape) != len(strides) {
		return nil, errors.Wrapf(ErrInvalidShape, "view: %d strides for rank %d shape", len(strides), len(shape))
	}
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "view")
	}
	for i, s := range strides {
		if s < 0 {
			return nil, errors.Wrapf(ErrInvalidShape, "view: negative stride %d at dimension %d", s, i)
		}
	}
	start := r.offset + offset
	if offset < 0 || (start+Span(shape, strides))*r.dtype.Size() > len(r.buffer.data) {
		return nil, errors.Wrapf(ErrOutOfBounds, "view: shape %v strides %v at offset %d exceeds buffer", shape, strides, start)
	}

	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: append([]int(nil), strides...),
		dtype:  r.dtype,
		device: r.device,
		offset: start,
	}, nil
}

// Reshape returns a view with a new shape over a contiguous tensor.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if !r.IsContiguous() {
		return nil, errors.Wrapf(ErrInvalidShape, "reshape: tensor with strides %v is not contiguous", r.stride)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, errors.Wrapf(ErrInvalidShape, "reshape: cannot reshape %v into %v", r.shape, shape)
	}
	return r.View(shape, shape.ComputeStrides(), 0)
}

// Release decrements the reference count and deallocates if it reaches 0.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// String returns a human-readable description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor[%s]%v on %s", r.dtype, r.shape, r.device)
}
