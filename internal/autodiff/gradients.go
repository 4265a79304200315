package autodiff

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/tensor"
)

// Tensor is any tensor handle that can produce an identity token.
// Host tensors and device tensors both satisfy it.
type Tensor interface {
	Ghost() tensor.Ghost
}

// Allocator creates zero-initialized gradient buffers shaped like the tensor
// a ghost stands for. Each backend provides one.
type Allocator[T Tensor] interface {
	AllocGrad(g tensor.Ghost) (T, error)
}

// releaser is implemented by gradient buffers that hold resources beyond
// garbage-collected memory (device buffers, tracked host buffers).
type releaser interface {
	Release()
}

type gradEntry[T Tensor] struct {
	ghost tensor.Ghost
	grad  T
}

// Gradients is the gradient ledger of one backward pass: a mapping from
// tensor identity to a lazily allocated gradient buffer.
//
// Entries are created on first demand and live until Release. At most one
// buffer exists per identity, so two distinct ghosts never alias.
// A Gradients value is owned by a single backward execution and is not safe
// for concurrent use.
type Gradients[T Tensor] struct {
	alloc   Allocator[T]
	entries map[uuid.UUID]*gradEntry[T]
}

// NewGradients creates an empty ledger backed by alloc.
func NewGradients[T Tensor](alloc Allocator[T]) *Gradients[T] {
	return &Gradients[T]{
		alloc:   alloc,
		entries: make(map[uuid.UUID]*gradEntry[T]),
	}
}

// TryAllocFor allocates a zeroed gradient buffer for g if none exists yet.
// It is idempotent and fails only when allocation fails or when g's shape
// disagrees with the buffer already registered for its identity.
func (g *Gradients[T]) TryAllocFor(ghost tensor.Ghost) error {
	_, err := g.GetOrAllocMut(ghost)
	return err
}

// GetOrAllocMut returns the gradient buffer for ghost, allocating it first if needed.
func (g *Gradients[T]) GetOrAllocMut(ghost tensor.Ghost) (T, error) {
	if entry, ok := g.entries[ghost.ID()]; ok {
		if !entry.ghost.SameLayout(ghost) {
			var zero T
			return zero, errors.Wrapf(ErrGhostMismatch, "gradient for %s is %s%v, requested %s%v (views must match)",
				ghost.ID(), entry.ghost.DType(), entry.ghost.Shape(), ghost.DType(), ghost.Shape())
		}
		return entry.grad, nil
	}

	grad, err := g.alloc.AllocGrad(ghost)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "allocating gradient %s%v", ghost.DType(), ghost.Shape())
	}
	klog.V(3).Infof("autodiff: allocated gradient %s %s%v", ghost.ID(), ghost.DType(), ghost.Shape())
	g.entries[ghost.ID()] = &gradEntry[T]{ghost: ghost, grad: grad}
	return grad, nil
}

// MutAndRef returns the gradient of mut for writing together with the
// gradient of ref for reading.
//
// Both gradients must already be allocated and the ghosts must refer to
// different identities; because each identity owns its own buffer, the two
// results never overlap. Violating either requirement is a programming error
// and panics.
func (g *Gradients[T]) MutAndRef(mut, ref tensor.Ghost) (T, T) {
	if mut.Same(ref) {
		panic(fmt.Sprintf("autodiff: MutAndRef called with the same identity %s twice", mut.ID()))
	}
	m, ok := g.entries[mut.ID()]
	if !ok {
		panic(fmt.Sprintf("autodiff: MutAndRef: gradient for %s not allocated", mut.ID()))
	}
	r, ok := g.entries[ref.ID()]
	if !ok {
		panic(fmt.Sprintf("autodiff: MutAndRef: gradient for %s not allocated", ref.ID()))
	}
	return m.grad, r.grad
}

// Get returns the gradient recorded for ghost, or ErrNoGradient.
// Callers treat the result as read-only.
func (g *Gradients[T]) Get(ghost tensor.Ghost) (T, error) {
	var zero T
	entry, ok := g.entries[ghost.ID()]
	if !ok {
		return zero, errors.Wrapf(ErrNoGradient, "tensor %s", ghost.ID())
	}
	if !entry.ghost.SameLayout(ghost) {
		return zero, errors.Wrapf(ErrGhostMismatch, "gradient for %s was recorded for a different view", ghost.ID())
	}
	return entry.grad, nil
}

// Has reports whether a gradient exists for ghost.
func (g *Gradients[T]) Has(ghost tensor.Ghost) bool {
	_, ok := g.entries[ghost.ID()]
	return ok
}

// Len returns the number of allocated gradients.
func (g *Gradients[T]) Len() int {
	return len(g.entries)
}

// Release drops every gradient buffer, releasing those that hold resources.
func (g *Gradients[T]) Release() {
	for id, entry := range g.entries {
		if r, ok := any(entry.grad).(releaser); ok {
			r.Release()
		}
		delete(g.entries, id)
	}
}
