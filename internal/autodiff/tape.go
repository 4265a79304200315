package autodiff

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackwardFunc computes part of the backward pass against the shared ledger.
// It captures identity tokens and shape metadata, never the forward tensors.
// Any buffer it does need is owned by the tape through OnRelease.
type BackwardFunc[T Tensor] func(grads *Gradients[T]) error

type backwardOp[T Tensor] struct {
	name string
	fn   BackwardFunc[T]
}

// Tape records backward closures during the forward pass and runs them in
// reverse registration order during the backward pass.
//
// Usage:
//
//	values := autodiff.Trace(raw, backend)
//	out := backend.FromSparse(values, coords, shape)
//	dense, tape := out.SplitTape()
//	// ... seed tape.Gradients() for dense ...
//	grads, err := tape.Execute()
//
// Forward operations never touch gradients: registration only appends.
// A tape is executed at most once.
type Tape[T Tensor] struct {
	ops      []backwardOp[T]
	grads    *Gradients[T]
	releases []func()
	consumed bool
}

// NewTape creates an empty tape whose ledger allocates through alloc.
func NewTape[T Tensor](alloc Allocator[T]) *Tape[T] {
	return &Tape[T]{
		ops:   make([]backwardOp[T], 0, 16),
		grads: NewGradients(alloc),
	}
}

// AddBackwardOp appends a backward closure. Nothing runs at registration time.
func (t *Tape[T]) AddBackwardOp(name string, fn BackwardFunc[T]) {
	if t.consumed {
		panic("autodiff: AddBackwardOp on an executed tape")
	}
	t.ops = append(t.ops, backwardOp[T]{name: name, fn: fn})
}

// OnRelease registers a resource owned by the tape. f runs exactly once,
// when the tape is executed (whether or not execution succeeds) or discarded.
func (t *Tape[T]) OnRelease(f func()) {
	if t.consumed {
		panic("autodiff: OnRelease on an executed tape")
	}
	t.releases = append(t.releases, f)
}

// Discard drops the tape without running it, freeing its ledger and every
// resource registered with OnRelease.
func (t *Tape[T]) Discard() {
	if t.consumed {
		return
	}
	t.consumed = true
	t.ops = nil
	t.grads.Release()
	t.grads = nil
	t.runReleases()
}

func (t *Tape[T]) runReleases() {
	releases := t.releases
	t.releases = nil
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// Gradients returns the ledger the tape will execute against, so callers
// can seed output gradients before Execute.
func (t *Tape[T]) Gradients() *Gradients[T] {
	return t.grads
}

// Len returns the number of registered backward closures.
func (t *Tape[T]) Len() int {
	return len(t.ops)
}

// Execute drains the tape, running every closure last-registered-first
// against one ledger, and returns that ledger.
//
// Execution stops at the first failing closure. Gradients left in the ledger
// by a failed pass are invalid; the ledger is released before returning.
// Resources registered with OnRelease are freed either way.
func (t *Tape[T]) Execute() (*Gradients[T], error) {
	if t.consumed {
		return nil, ErrTapeConsumed
	}
	t.consumed = true
	defer t.runReleases()

	ops := t.ops
	t.ops = nil
	grads := t.grads
	t.grads = nil

	klog.V(2).Infof("autodiff: executing tape with %d backward ops", len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		klog.V(2).Infof("autodiff: backward %s", op.name)
		if err := op.fn(grads); err != nil {
			grads.Release()
			return nil, errors.Wrapf(err, "backward %s (op %d of %d)", op.name, i+1, len(ops))
		}
	}
	return grads, nil
}
