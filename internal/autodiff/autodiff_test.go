package autodiff_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/autodiff"
	"github.com/born-ml/sparse/internal/tensor"
)

// hostAlloc allocates zeroed host gradients and counts allocations.
type hostAlloc struct {
	calls int
	fail  error
}

func (a *hostAlloc) AllocGrad(g tensor.Ghost) (*tensor.RawTensor, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	a.calls++
	return tensor.NewRaw(g.Shape(), g.DType(), g.Device())
}

func mustFloat32(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestGradientsAllocatesOncePerIdentity(t *testing.T) {
	alloc := &hostAlloc{}
	grads := autodiff.NewGradients[*tensor.RawTensor](alloc)
	x := mustFloat32(t, []float32{1, 2, 3}, tensor.Shape{3})

	require.NoError(t, grads.TryAllocFor(x.Ghost()))
	require.NoError(t, grads.TryAllocFor(x.Ghost()))
	assert.Equal(t, 1, alloc.calls)
	assert.Equal(t, 1, grads.Len())

	g, err := grads.GetOrAllocMut(x.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, g.AsFloat32())
	assert.Equal(t, x.Shape(), g.Shape())

	// Clones share identity and therefore the same gradient.
	g2, err := grads.GetOrAllocMut(x.Clone().Ghost())
	require.NoError(t, err)
	assert.Same(t, g, g2)
	assert.Equal(t, 1, alloc.calls)
}

func TestGradientsGhostMismatch(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	x := mustFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{4})
	require.NoError(t, grads.TryAllocFor(x.Ghost()))

	reshaped := tensor.NewGhost(x.ID(), tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	err := grads.TryAllocFor(reshaped)
	assert.ErrorIs(t, err, autodiff.ErrGhostMismatch)
}

func TestGradientsViewsOfOneBufferDoNotMerge(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	a := mustFloat32(t, make([]float32, 10), tensor.Shape{10})
	head, err := a.View(tensor.Shape{5}, []int{1}, 0)
	require.NoError(t, err)
	tail, err := a.View(tensor.Shape{5}, []int{1}, 5)
	require.NoError(t, err)
	require.True(t, head.Ghost().Same(tail.Ghost()))

	require.NoError(t, grads.TryAllocFor(head.Ghost()))
	assert.ErrorIs(t, grads.TryAllocFor(tail.Ghost()), autodiff.ErrGhostMismatch)
	_, err = grads.Get(tail.Ghost())
	assert.ErrorIs(t, err, autodiff.ErrGhostMismatch)

	// The same window taken again shares the entry.
	again, err := a.View(tensor.Shape{5}, []int{1}, 0)
	require.NoError(t, err)
	_, err = grads.Get(again.Ghost())
	assert.NoError(t, err)
}

func TestGradientsAllocFailure(t *testing.T) {
	boom := errors.New("out of memory")
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{fail: boom})
	x := mustFloat32(t, []float32{1}, tensor.Shape{1})

	err := grads.TryAllocFor(x.Ghost())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, grads.Has(x.Ghost()))
}

func TestGradientsGet(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	x := mustFloat32(t, []float32{1}, tensor.Shape{1})

	_, err := grads.Get(x.Ghost())
	assert.ErrorIs(t, err, autodiff.ErrNoGradient)

	require.NoError(t, grads.TryAllocFor(x.Ghost()))
	g, err := grads.Get(x.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, g.AsFloat32())
}

func TestMutAndRefDisjoint(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	in := mustFloat32(t, []float32{1, 2}, tensor.Shape{2})
	out := mustFloat32(t, []float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, grads.TryAllocFor(in.Ghost()))
	require.NoError(t, grads.TryAllocFor(out.Ghost()))

	gOut, err := grads.GetOrAllocMut(out.Ghost())
	require.NoError(t, err)
	copy(gOut.AsFloat32(), []float32{5, 6, 7})

	gIn, gRef := grads.MutAndRef(in.Ghost(), out.Ghost())
	gIn.AsFloat32()[0] = gRef.AsFloat32()[2]
	assert.Equal(t, []float32{7, 0}, gIn.AsFloat32())
	assert.Equal(t, []float32{5, 6, 7}, gRef.AsFloat32())
	assert.NotEqual(t, gIn.ID(), gRef.ID())
}

func TestMutAndRefPanics(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	a := mustFloat32(t, []float32{1}, tensor.Shape{1})
	b := mustFloat32(t, []float32{1}, tensor.Shape{1})
	require.NoError(t, grads.TryAllocFor(a.Ghost()))

	assert.Panics(t, func() { grads.MutAndRef(a.Ghost(), a.Ghost()) })
	assert.Panics(t, func() { grads.MutAndRef(a.Ghost(), b.Ghost()) })
	assert.Panics(t, func() { grads.MutAndRef(b.Ghost(), a.Ghost()) })
}

func TestGradientsRelease(t *testing.T) {
	grads := autodiff.NewGradients[*tensor.RawTensor](&hostAlloc{})
	x := mustFloat32(t, []float32{1, 2}, tensor.Shape{2})
	g, err := grads.GetOrAllocMut(x.Ghost())
	require.NoError(t, err)

	grads.Release()
	assert.Equal(t, 0, grads.Len())
	assert.Panics(t, func() { g.AsFloat32() })
}

func TestTapeRunsInReverseOrder(t *testing.T) {
	tape := autodiff.NewTape[*tensor.RawTensor](&hostAlloc{})
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		tape.AddBackwardOp(name, func(*autodiff.Gradients[*tensor.RawTensor]) error {
			order = append(order, name)
			return nil
		})
	}
	assert.Empty(t, order, "registration must not run closures")
	assert.Equal(t, 3, tape.Len())

	grads, err := tape.Execute()
	require.NoError(t, err)
	require.NotNil(t, grads)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestTapeStopsAtFirstError(t *testing.T) {
	tape := autodiff.NewTape[*tensor.RawTensor](&hostAlloc{})
	boom := errors.New("boom")
	var ran []string
	tape.AddBackwardOp("a", func(*autodiff.Gradients[*tensor.RawTensor]) error {
		ran = append(ran, "a")
		return nil
	})
	tape.AddBackwardOp("b", func(*autodiff.Gradients[*tensor.RawTensor]) error {
		ran = append(ran, "b")
		return boom
	})
	tape.AddBackwardOp("c", func(*autodiff.Gradients[*tensor.RawTensor]) error {
		ran = append(ran, "c")
		return nil
	})

	grads, err := tape.Execute()
	require.Error(t, err)
	assert.Nil(t, grads)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "backward b")
	assert.Equal(t, []string{"c", "b"}, ran)
}

func TestTapeExecutesOnce(t *testing.T) {
	tape := autodiff.NewTape[*tensor.RawTensor](&hostAlloc{})
	calls := 0
	tape.AddBackwardOp("op", func(*autodiff.Gradients[*tensor.RawTensor]) error {
		calls++
		return nil
	})

	_, err := tape.Execute()
	require.NoError(t, err)
	_, err = tape.Execute()
	assert.ErrorIs(t, err, autodiff.ErrTapeConsumed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, tape.Len())
	assert.Panics(t, func() {
		tape.AddBackwardOp("late", func(*autodiff.Gradients[*tensor.RawTensor]) error { return nil })
	})
}

func TestTapeReleasesOwnedResources(t *testing.T) {
	boom := errors.New("boom")
	for name, fail := range map[string]error{"success": nil, "failure": boom} {
		t.Run(name, func(t *testing.T) {
			tape := autodiff.NewTape[*tensor.RawTensor](&hostAlloc{})
			var released []string
			tape.OnRelease(func() { released = append(released, "first") })
			tape.AddBackwardOp("first", func(*autodiff.Gradients[*tensor.RawTensor]) error { return nil })
			tape.OnRelease(func() { released = append(released, "second") })
			tape.AddBackwardOp("second", func(*autodiff.Gradients[*tensor.RawTensor]) error { return fail })

			_, err := tape.Execute()
			if fail != nil {
				require.ErrorIs(t, err, boom)
			} else {
				require.NoError(t, err)
			}
			// Skipped ops still give up their resources, newest first.
			assert.Equal(t, []string{"second", "first"}, released)
		})
	}
}

func TestTapeDiscard(t *testing.T) {
	tape := autodiff.NewTape[*tensor.RawTensor](&hostAlloc{})
	released, ran := 0, 0
	tape.OnRelease(func() { released++ })
	tape.AddBackwardOp("op", func(*autodiff.Gradients[*tensor.RawTensor]) error {
		ran++
		return nil
	})

	tape.Discard()
	tape.Discard()
	assert.Equal(t, 1, released)
	assert.Zero(t, ran)
	_, err := tape.Execute()
	assert.ErrorIs(t, err, autodiff.ErrTapeConsumed)
}

func TestTracedTapeOwnership(t *testing.T) {
	alloc := &hostAlloc{}
	x := mustFloat32(t, []float32{1, 2}, tensor.Shape{2})

	c := autodiff.Constant(x)
	assert.False(t, c.IsTraced())
	_, tape := c.SplitTape()
	assert.Nil(t, tape)

	tr := autodiff.Trace(x, alloc)
	require.True(t, tr.IsTraced())
	v, tape := tr.SplitTape()
	assert.Same(t, x, v)
	assert.NotNil(t, tape)
	assert.False(t, tr.IsTraced())

	moved := autodiff.PutTape(v, tape)
	assert.True(t, moved.IsTraced())
	assert.Same(t, x, moved.Value())
}

func TestTraceWithSharesTape(t *testing.T) {
	alloc := &hostAlloc{}
	x := mustFloat32(t, []float32{1}, tensor.Shape{1})
	y := mustFloat32(t, []float32{2}, tensor.Shape{1})

	tape := autodiff.NewTape[*tensor.RawTensor](alloc)
	tx := autodiff.TraceWith(x, tape)
	ty := autodiff.TraceWith(y, tape)
	require.True(t, tx.IsTraced())
	require.True(t, ty.IsTraced())

	_, fromX := tx.SplitTape()
	_, fromY := ty.SplitTape()
	assert.Same(t, tape, fromX)
	assert.Same(t, tape, fromY)
}

func TestBackwardSeedsOutput(t *testing.T) {
	alloc := &hostAlloc{}
	in := mustFloat32(t, []float32{1, 2}, tensor.Shape{2})
	out := mustFloat32(t, []float32{0, 0}, tensor.Shape{2})

	_, tape := autodiff.Trace(in, alloc).SplitTape()
	tape.AddBackwardOp("double", func(g *autodiff.Gradients[*tensor.RawTensor]) error {
		if err := g.TryAllocFor(in.Ghost()); err != nil {
			return err
		}
		gIn, gOut := g.MutAndRef(in.Ghost(), out.Ghost())
		for i, v := range gOut.AsFloat32() {
			gIn.AsFloat32()[i] += 2 * v
		}
		return nil
	})

	grads, err := autodiff.Backward(autodiff.PutTape(out, tape), func(g *tensor.RawTensor) error {
		copy(g.AsFloat32(), []float32{1, 3})
		return nil
	})
	require.NoError(t, err)
	gIn, err := grads.Get(in.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 6}, gIn.AsFloat32())
}

func TestBackwardRejectsConstant(t *testing.T) {
	x := mustFloat32(t, []float32{1}, tensor.Shape{1})
	_, err := autodiff.Backward(autodiff.Constant(x), nil)
	assert.Error(t, err)
}
