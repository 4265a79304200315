package autodiff

// Traced is a tensor handle that optionally owns a tape.
//
// A traced value carries the tape that records how it was produced; a
// constant (for example a coordinate tensor) carries none. Operations split
// the tape off their input, register a backward closure on it, and put it on
// their output, so tape ownership moves along the chain of values.
type Traced[T Tensor] struct {
	value T
	tape  *Tape[T]
}

// Trace starts tracing value with a fresh tape and ledger.
func Trace[T Tensor](value T, alloc Allocator[T]) *Traced[T] {
	return &Traced[T]{value: value, tape: NewTape(alloc)}
}

// TraceWith attaches an existing tape to value.
func TraceWith[T Tensor](value T, tape *Tape[T]) *Traced[T] {
	return &Traced[T]{value: value, tape: tape}
}

// Constant wraps value without a tape.
func Constant[T Tensor](value T) *Traced[T] {
	return &Traced[T]{value: value}
}

// Value returns the underlying tensor.
func (t *Traced[T]) Value() T {
	return t.value
}

// IsTraced reports whether the handle carries a tape.
func (t *Traced[T]) IsTraced() bool {
	return t.tape != nil
}

// SplitTape detaches the tape, returning the plain tensor and the tape
// (nil for constants). The handle no longer owns the tape afterwards.
func (t *Traced[T]) SplitTape() (T, *Tape[T]) {
	tape := t.tape
	t.tape = nil
	return t.value, tape
}

// PutTape transfers tape ownership to value.
func PutTape[T Tensor](value T, tape *Tape[T]) *Traced[T] {
	return &Traced[T]{value: value, tape: tape}
}
