package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/sparse/internal/autodiff"
	"github.com/born-ml/sparse/internal/parallel"
	"github.com/born-ml/sparse/internal/tensor"
)

func fromSlice[T tensor.DType](t *testing.T, data []T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func diagonal(t *testing.T) (*tensor.RawTensor, *tensor.RawTensor) {
	values := fromSlice(t, []float32{0, 1, 2, 3, 4}, tensor.Shape{5})
	coords := fromSlice(t, []int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, tensor.Shape{5, 2})
	return values, coords
}

func TestFromSparseDiagonal(t *testing.T) {
	backend := New()
	values, coords := diagonal(t)

	out := backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{5, 5})
	assert.False(t, out.IsTraced())

	dense := out.Value()
	require.Equal(t, tensor.Shape{5, 5}, dense.Shape())
	got := tensor.Values[float32](dense)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			want := float32(0)
			if i == j {
				want = float32(i)
			}
			assert.Equal(t, want, got[i*5+j], "position (%d, %d)", i, j)
		}
	}
}

func TestFromSparseBackwardRoundTrip(t *testing.T) {
	backend := New()
	values, coords := diagonal(t)

	out := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{5, 5})
	require.True(t, out.IsTraced())

	grads, err := autodiff.Backward(out, backend.SeedFlatIndex)
	require.NoError(t, err)
	defer grads.Release()

	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 6, 12, 18, 24}, gv.AsFloat32())
}

func TestFromSparseGradientMatchesOutputOffsets(t *testing.T) {
	backend := New()
	shape := tensor.Shape{2, 3, 4}
	values := fromSlice(t, []float64{1.5, -2, 3, 7}, tensor.Shape{4})
	coords := fromSlice(t, []int32{
		1, 2, 3,
		0, 0, 0,
		0, 1, 2,
		1, 0, 1,
	}, tensor.Shape{4, 3})

	out := backend.FromSparse(autodiff.Trace(values, backend), coords, shape)
	dense := out.Value()
	assert.Equal(t, 1.5, tensor.At[float64](dense, 1, 2, 3))
	assert.Equal(t, -2.0, tensor.At[float64](dense, 0, 0, 0))
	assert.Equal(t, 3.0, tensor.At[float64](dense, 0, 1, 2))
	assert.Equal(t, 7.0, tensor.At[float64](dense, 1, 0, 1))

	grads, err := autodiff.Backward(out, backend.SeedFlatIndex)
	require.NoError(t, err)
	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float64{23, 0, 6, 13}, gv.AsFloat64())
}

func TestFromSparseZeroFill(t *testing.T) {
	backend := New()
	values := fromSlice(t, []int64{9, 8}, tensor.Shape{2})
	coords := fromSlice(t, []int64{0, 3, 2, 1}, tensor.Shape{2, 2})

	dense := backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{3, 4}).Value()
	got := tensor.Values[int64](dense)
	nonZero := 0
	for pos, v := range got {
		switch pos {
		case 3:
			assert.Equal(t, int64(9), v)
		case 9:
			assert.Equal(t, int64(8), v)
		default:
			assert.Zero(t, v, "position %d", pos)
		}
		if v != 0 {
			nonZero++
		}
	}
	assert.Equal(t, 2, nonZero)
}

func TestFromSparseDuplicateLastWriteWins(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{10, 20, 30}, tensor.Shape{3})
	coords := fromSlice(t, []int64{1, 1, 0, 0, 1, 1}, tensor.Shape{3, 2})

	out := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{2, 2})
	dense := out.Value()
	assert.Equal(t, float32(30), tensor.At[float32](dense, 1, 1))
	assert.Equal(t, float32(20), tensor.At[float32](dense, 0, 0))

	// Every duplicate still reads the gradient of the shared position.
	grads, err := autodiff.Backward(out, backend.SeedOnes)
	require.NoError(t, err)
	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, gv.AsFloat32())
}

func TestFromSparseLengthMismatchPanicsBeforeAllocation(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	coords := fromSlice(t, []int64{0, 0, 1, 1}, tensor.Shape{2, 2})

	assert.PanicsWithValue(t,
		"from_sparse: 3 values but 2 coordinate rows: invalid shape",
		func() { backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{2, 2}) })
	assert.Zero(t, backend.MemoryStats().Allocations)
}

func TestFromSparseUsageErrors(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{1, 2}, tensor.Shape{2})

	tests := []struct {
		name   string
		coords *tensor.RawTensor
		shape  tensor.Shape
	}{
		{"rank mismatch", fromSlice(t, []int64{0, 0, 1, 1}, tensor.Shape{2, 2}), tensor.Shape{4}},
		{"coords rank 1", fromSlice(t, []int64{0, 1}, tensor.Shape{2}), tensor.Shape{4}},
		{"float coords", fromSlice(t, []float32{0, 1}, tensor.Shape{2, 1}), tensor.Shape{4}},
		{"out of range", fromSlice(t, []int64{0, 4}, tensor.Shape{2, 1}), tensor.Shape{4}},
		{"negative", fromSlice(t, []int32{0, -1}, tensor.Shape{2, 1}), tensor.Shape{4}},
		{"bad shape", fromSlice(t, []int64{0, 1}, tensor.Shape{2, 1}), tensor.Shape{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				backend.FromSparse(autodiff.Constant(values), tt.coords, tt.shape)
			})
		})
	}
	assert.Zero(t, backend.MemoryStats().Allocations)
}

func TestFromSparseOverflowingShapePanicsAsUsageError(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{1}, tensor.Shape{1})
	coords := fromSlice(t, []int64{0, 0}, tensor.Shape{1, 2})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.Contains(t, r, "from_sparse:")
		assert.Contains(t, r, "invalid shape")
		assert.Zero(t, backend.MemoryStats().Allocations)
	}()
	backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{1 << 32, 1 << 32})
}

func TestFromSparseUsageErrorKeepsTape(t *testing.T) {
	backend := New()
	values, coords := diagonal(t)
	traced := autodiff.Trace(values, backend)

	assert.Panics(t, func() {
		backend.FromSparse(traced, coords, tensor.Shape{4, 4})
	})
	require.True(t, traced.IsTraced())

	out := backend.FromSparse(traced, coords, tensor.Shape{5, 5})
	assert.True(t, out.IsTraced())
	assert.False(t, traced.IsTraced())
}

func TestFromSparseStridedInputs(t *testing.T) {
	backend := New()
	// Every other element of base is a value: [1, 2, 3].
	base := fromSlice(t, []float32{1, -1, 2, -1, 3, -1}, tensor.Shape{6})
	values, err := base.View(tensor.Shape{3}, []int{2}, 0)
	require.NoError(t, err)

	// Coordinates stored column-major: rows are (0,2), (1,0), (2,1).
	colMajor := fromSlice(t, []int64{0, 1, 2, 2, 0, 1}, tensor.Shape{6})
	coords, err := colMajor.View(tensor.Shape{3, 2}, []int{1, 3}, 0)
	require.NoError(t, err)

	dense := backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{3, 3}).Value()
	assert.Equal(t, []float32{
		0, 0, 1,
		2, 0, 0,
		0, 3, 0,
	}, tensor.Values[float32](dense))
}

func TestFromSparseFloat16(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(2)}, tensor.Shape{2})
	coords := fromSlice(t, []int64{1, 0}, tensor.Shape{2, 1})

	out := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{3})
	dense := tensor.Values[float16.Float16](out.Value())
	assert.Equal(t, []float32{2, 0.5, 0}, []float32{dense[0].Float32(), dense[1].Float32(), dense[2].Float32()})

	grads, err := autodiff.Backward(out, backend.SeedFlatIndex)
	require.NoError(t, err)
	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	assert.Equal(t, float32(1), gv.AsFloat16()[0].Float32())
	assert.Equal(t, float32(0), gv.AsFloat16()[1].Float32())
}

func TestFromSparseFlat(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{0, 1, 2, 3, 4}, tensor.Shape{5})
	flat := fromSlice(t, []int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, tensor.Shape{10})

	out := backend.FromSparseFlat(autodiff.Trace(values, backend), flat, tensor.Shape{5, 5})
	assert.Equal(t, float32(3), tensor.At[float32](out.Value(), 3, 3))
	assert.True(t, flat.IsUnique(), "temporary row view must be released")

	grads, err := autodiff.Backward(out, backend.SeedFlatIndex)
	require.NoError(t, err)
	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 6, 12, 18, 24}, gv.AsFloat32())

	assert.Panics(t, func() {
		backend.FromSparseFlat(autodiff.Constant(values), fromSlice(t, []int64{0, 1, 2}, tensor.Shape{3}), tensor.Shape{5, 5})
	})
}

func TestFromSparseChainedBackward(t *testing.T) {
	backend := New()
	values := fromSlice(t, []float32{5, 7}, tensor.Shape{2})
	coords := fromSlice(t, []int64{0, 2}, tensor.Shape{2, 1})

	// Materialize once, then scatter the dense result again into a larger vector.
	first := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{3})
	second := backend.FromSparse(first, fromSlice(t, []int64{4, 3, 0}, tensor.Shape{3, 1}), tensor.Shape{5})
	assert.Equal(t, []float32{7, 0, 0, 0, 5}, tensor.Values[float32](second.Value()))

	grads, err := autodiff.Backward(second, backend.SeedFlatIndex)
	require.NoError(t, err)
	gv, err := grads.Get(values.Ghost())
	require.NoError(t, err)
	// values[0] -> first[0] -> second[4]; values[1] -> first[2] -> second[0].
	assert.Equal(t, []float32{4, 0}, gv.AsFloat32())
}

func TestFromSparseAllocationFailureAbortsBackward(t *testing.T) {
	backend := New(WithMemoryLimit(150))
	values, coords := diagonal(t)

	out := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{5, 5})
	assert.Equal(t, uint64(100), backend.MemoryStats().LiveBytes)

	_, tape := out.SplitTape()
	grads, err := tape.Execute()
	require.Error(t, err)
	assert.Nil(t, grads)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Contains(t, err.Error(), "backward from_sparse")
	// Partial gradients are released with the failed ledger.
	assert.Equal(t, uint64(100), backend.MemoryStats().LiveBytes)
}

func TestFromSparseForwardOutOfMemoryPanics(t *testing.T) {
	backend := New(WithMemoryLimit(64))
	values, coords := diagonal(t)
	assert.Panics(t, func() {
		backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{5, 5})
	})
}

func TestFromSparseRejectsForeignDevice(t *testing.T) {
	backend := New()
	values, err := tensor.FromSlice([]float32{1}, tensor.Shape{1}, tensor.WebGPU)
	require.NoError(t, err)
	coords := fromSlice(t, []int64{0}, tensor.Shape{1, 1})
	assert.Panics(t, func() {
		backend.FromSparse(autodiff.Constant(values), coords, tensor.Shape{1})
	})
}

func TestFromSparseParallelBackward(t *testing.T) {
	// Duplicates included: each value still reads its own position.
	const n = 10000
	shape := tensor.Shape{100, 100}
	vals := make([]float64, n)
	coords := make([]int64, 0, 2*n)
	for i := 0; i < n; i++ {
		vals[i] = float64(i)
		coords = append(coords, int64((i*7)%100), int64((i*13)%100))
	}

	for name, cfg := range map[string]parallel.Config{
		"sequential": parallel.Sequential(),
		"parallel":   {Enabled: true, NumWorkers: 8, MinChunkSize: 64},
	} {
		t.Run(name, func(t *testing.T) {
			backend := New(WithParallelism(cfg))
			values := fromSlice(t, vals, tensor.Shape{n})
			out := backend.FromSparse(autodiff.Trace(values, backend), fromSlice(t, coords, tensor.Shape{n, 2}), shape)

			grads, err := autodiff.Backward(out, backend.SeedFlatIndex)
			require.NoError(t, err)
			defer grads.Release()
			gv, err := grads.Get(values.Ghost())
			require.NoError(t, err)

			got := gv.AsFloat64()
			for i := 0; i < n; i++ {
				want := float64(((i*7)%100)*100 + (i*13)%100)
				if got[i] != want {
					t.Fatalf("grad_values[%d] = %v, want %v", i, got[i], want)
				}
			}
		})
	}
}
