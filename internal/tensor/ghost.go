package tensor

import (
	"slices"

	"github.com/google/uuid"
)

// Ghost is a lightweight, copyable identity token for a tensor.
//
// It is derived from the identity of the tensor's buffer rather than its values,
// and it keeps no reference to the buffer itself. The gradient ledger uses it
// as a key and as the blueprint (shape, dtype, device) for a gradient buffer.
//
// Views of one buffer share its identity. The ghost also records the view's
// strides and offset so that two different windows onto the same buffer can
// be told apart.
type Ghost struct {
	id      uuid.UUID
	shape   Shape
	strides []int
	offset  int
	dtype   DataType
	device  Device
}

// NewGhost creates a Ghost for a contiguous tensor starting at the beginning
// of its buffer.
func NewGhost(id uuid.UUID, shape Shape, dtype DataType, device Device) Ghost {
	return NewViewGhost(id, shape, shape.ComputeStrides(), 0, dtype, device)
}

// NewViewGhost creates a Ghost for a strided view of a buffer.
func NewViewGhost(id uuid.UUID, shape Shape, strides []int, offset int, dtype DataType, device Device) Ghost {
	return Ghost{
		id:      id,
		shape:   shape.Clone(),
		strides: slices.Clone(strides),
		offset:  offset,
		dtype:   dtype,
		device:  device,
	}
}

// ID returns the buffer identity the ghost stands for.
func (g Ghost) ID() uuid.UUID {
	return g.id
}

// Shape returns the shape of the shadowed tensor.
func (g Ghost) Shape() Shape {
	return g.shape
}

// DType returns the data type of the shadowed tensor.
func (g Ghost) DType() DataType {
	return g.dtype
}

// Device returns the device of the shadowed tensor.
func (g Ghost) Device() Device {
	return g.device
}

// Same reports whether both ghosts refer to the same buffer.
func (g Ghost) Same(other Ghost) bool {
	return g.id == other.id
}

// SameLayout reports whether both ghosts describe the same elements of the
// same buffer: equal shape, strides, offset and dtype.
func (g Ghost) SameLayout(other Ghost) bool {
	return g.id == other.id &&
		g.shape.Equal(other.shape) &&
		slices.Equal(g.strides, other.strides) &&
		g.offset == other.offset &&
		g.dtype == other.dtype
}

// Ghost returns the identity token of the tensor.
func (r *RawTensor) Ghost() Ghost {
	return NewViewGhost(r.buffer.id, r.shape, r.stride, r.offset, r.dtype, r.device)
}
