package cpu

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/autodiff"
	"github.com/born-ml/sparse/internal/tensor"
)

// Traced is a host tensor that may carry a tape.
type Traced = autodiff.Traced[*tensor.RawTensor]

// FromSparse materializes a dense tensor of the given shape from a list of
// values and a parallel (N, D) list of coordinates. Positions not named by
// any coordinate are zero; on duplicate coordinates the later value wins.
//
// Coordinates are a constant and never carry gradient. If values is traced,
// the output carries its tape extended with the backward pass:
//
//	grad_values[i] += grad_output[coords[i]]
//
// Mismatched shapes or out-of-range coordinates panic before the output is
// allocated. Every dimension, N included, must be positive: an empty input
// is a usage error, not an all-zero result.
//
// Example:
//
//	values, _ := tensor.FromSlice([]float32{0, 1, 2, 3, 4}, tensor.Shape{5}, tensor.CPU)
//	coords, _ := tensor.FromSlice([]int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, tensor.Shape{5, 2}, tensor.CPU)
//	dense := backend.FromSparse(autodiff.Trace(values, backend), coords, tensor.Shape{5, 5})
func (cpu *CPUBackend) FromSparse(values *Traced, coords *tensor.RawTensor, shape tensor.Shape) *Traced {
	in := values.Value()
	cpu.checkDevice(in, "values")
	cpu.checkDevice(coords, "coordinates")

	if err := tensor.ValidateSparse(in.Shape(), coords.Shape(), coords.DType(), shape); err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}

	rows, err := tensor.NewCoordRows(coords)
	if err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	// Offsets are decoded against the logical output shape's row-major strides.
	offsets, err := rows.Offsets(shape, shape.ComputeStrides())
	if err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}

	out, err := cpu.Zeros(shape, in.DType())
	if err != nil {
		panic(fmt.Sprintf("from_sparse: failed to create result tensor: %v", err))
	}
	scatterInto(out, in, offsets)

	_, tape := values.SplitTape()

	if tape == nil {
		return autodiff.Constant(out)
	}

	inGhost, outGhost := in.Ghost(), out.Ghost()
	tape.AddBackwardOp("from_sparse", func(grads *autodiff.Gradients[*tensor.RawTensor]) error {
		if err := grads.TryAllocFor(inGhost); err != nil {
			return err
		}
		if err := grads.TryAllocFor(outGhost); err != nil {
			return err
		}
		gradValues, gradOutput := grads.MutAndRef(inGhost, outGhost)
		return gatherAccumulateInto(gradValues, gradOutput, offsets, cpu.parallel)
	})
	klog.V(3).Infof("cpu: from_sparse %d values into %v registered backward (tape len %d)",
		len(offsets), shape, tape.Len())
	return autodiff.PutTape(out, tape)
}

// FromSparseFlat is FromSparse with coordinates flattened to a rank-1 tensor
// of N*D entries, D being the rank of shape.
func (cpu *CPUBackend) FromSparseFlat(values *Traced, flatCoords *tensor.RawTensor, shape tensor.Shape) *Traced {
	if len(flatCoords.Shape()) != 1 {
		panic(fmt.Sprintf("from_sparse: flat coordinates must be rank 1, got %v", flatCoords.Shape()))
	}
	rank := len(shape)
	if rank == 0 || flatCoords.Shape()[0]%rank != 0 {
		panic(fmt.Sprintf("from_sparse: %d flat coordinates do not split into rows of %d",
			flatCoords.Shape()[0], rank))
	}
	coords, err := flatCoords.View(tensor.Shape{flatCoords.Shape()[0] / rank, rank},
		[]int{rank * flatCoords.Strides()[0], flatCoords.Strides()[0]}, 0)
	if err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	defer coords.Release()
	return cpu.FromSparse(values, coords, shape)
}

func (cpu *CPUBackend) checkDevice(t *tensor.RawTensor, name string) {
	if t.Device() != cpu.device {
		panic(fmt.Sprintf("from_sparse: %s on %s, expected %s", name, t.Device(), cpu.device))
	}
}
