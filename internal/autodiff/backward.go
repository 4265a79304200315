// Package autodiff implements reverse-mode automatic differentiation with a
// tape of backward closures and a gradient ledger keyed by tensor identity.
//
// Architecture:
//   - Ghost: identity token (tensor.Ghost) standing in for a tensor without
//     keeping its data alive
//   - Gradients: lazily allocated gradient buffers, one per identity
//   - Tape: backward closures registered during the forward pass, drained
//     in reverse order exactly once
//   - Traced: a tensor handle that may own a tape
//
// Backends supply an Allocator so gradients live on the same device as the
// tensors they belong to.
package autodiff

import (
	"github.com/pkg/errors"
)

// SeedFunc writes the initial output gradient into grad, which is zeroed.
type SeedFunc[T Tensor] func(grad T) error

// Backward runs the backward pass for out.
//
// It takes the tape from out, allocates the gradient of out, lets seed fill
// it, and executes the tape. Constants have nothing to differentiate and
// return an error. If seeding fails the tape is discarded.
//
// Example:
//
//	out := backend.FromSparse(autodiff.Trace(values, backend), coords, shape)
//	grads, err := autodiff.Backward(out, backend.SeedOnes)
//	gv, err := grads.Get(values.Ghost())
func Backward[T Tensor](out *Traced[T], seed SeedFunc[T]) (*Gradients[T], error) {
	value, tape := out.SplitTape()
	if tape == nil {
		return nil, errors.New("backward: tensor is not traced")
	}

	grads := tape.Gradients()
	if grads == nil {
		return nil, ErrTapeConsumed
	}
	grad, err := grads.GetOrAllocMut(value.Ghost())
	if err != nil {
		tape.Discard()
		return nil, errors.Wrap(err, "backward: output gradient")
	}
	if seed != nil {
		if err := seed(grad); err != nil {
			tape.Discard()
			return nil, errors.Wrap(err, "backward: seeding output gradient")
		}
	}
	return tape.Execute()
}
