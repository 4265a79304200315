//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/autodiff"
	"github.com/born-ml/sparse/internal/tensor"
)

// Traced is a device tensor that may carry a tape.
type Traced = autodiff.Traced[*DeviceTensor]

// FromSparse materializes a dense device tensor of the given shape from
// device values and host (N, D) coordinates. Positions not named by any
// coordinate are zero.
//
// Coordinates are validated on the host and uploaded as int32. One kernel
// invocation writes each value, so when coordinates repeat, the value left
// at that position is one of the candidates, but which one is unspecified.
//
// If values is traced, the output carries its tape extended with the
// backward pass grad_values[i] += grad_output[coords[i]]. Usage errors and
// launch failures panic. As on the host, every dimension must be positive,
// so empty inputs are usage errors.
func (b *Backend) FromSparse(values *Traced, coords *tensor.RawTensor, shape tensor.Shape) *Traced {
	in := values.Value()
	if err := tensor.ValidateSparse(in.Shape(), coords.Shape(), coords.DType(), shape); err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	rows, err := tensor.NewCoordRows(coords)
	if err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	if _, err := rows.Offsets(shape, shape.ComputeStrides()); err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}

	deviceCoords, err := b.UploadCoordinates(coords)
	if err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	return b.fromSparse(values, deviceCoords, shape)
}

// FromSparseDevice is FromSparse with coordinates already resident on the
// device as an (N, D) int32 tensor. Their values are not checked on the
// host; rows outside the output are skipped by the kernel. The backend takes
// ownership of coords.
func (b *Backend) FromSparseDevice(values *Traced, coords *DeviceTensor, shape tensor.Shape) *Traced {
	if err := tensor.ValidateSparse(values.Value().Shape(), coords.Shape(), coords.DType(), shape); err != nil {
		panic(fmt.Sprintf("from_sparse: %v", err))
	}
	return b.fromSparse(values, coords, shape)
}

func (b *Backend) fromSparse(values *Traced, coords *DeviceTensor, shape tensor.Shape) *Traced {
	in := values.Value()

	meta, err := newSparseMeta(in.NumElements(), 1, coords.Shape(), coords.Strides(), shape)
	if err != nil {
		coords.Release()
		panic(fmt.Sprintf("from_sparse: %v", err))
	}

	out, err := b.Zeros(shape, in.DType())
	if err != nil {
		coords.Release()
		panic(fmt.Sprintf("from_sparse: failed to create result tensor: %v", err))
	}
	if err := b.launchFromSparse(moduleFromSparseFwd, in, coords, out, meta); err != nil {
		coords.Release()
		out.Release()
		panic(fmt.Sprintf("from_sparse: %v", err))
	}

	_, tape := values.SplitTape()
	if tape == nil {
		coords.Release()
		return autodiff.Constant(out)
	}

	inGhost, outGhost := in.Ghost(), out.Ghost()
	tape.OnRelease(coords.Release)
	tape.AddBackwardOp("from_sparse", func(grads *autodiff.Gradients[*DeviceTensor]) error {
		if err := grads.TryAllocFor(inGhost); err != nil {
			return err
		}
		if err := grads.TryAllocFor(outGhost); err != nil {
			return err
		}
		gradValues, gradOutput := grads.MutAndRef(inGhost, outGhost)
		return b.launchFromSparse(moduleFromSparseBwd, gradValues, coords, gradOutput, meta)
	})
	klog.V(3).Infof("webgpu: from_sparse %d values into %v registered backward (tape len %d)",
		meta.n, shape, tape.Len())
	return autodiff.PutTape(out, tape)
}

// launchFromSparse queues one from_sparse kernel launch with one invocation
// per value. values and output are the forward tensors or their gradients.
func (b *Backend) launchFromSparse(module string, values, coords, output *DeviceTensor, meta sparseMeta) (err error) {
	// The bindings panic on device errors.
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrLaunch, "%s: %v", module, r)
		}
	}()

	k, err := b.kernels.Get(values.DType(), module)
	if err != nil {
		return err
	}

	valuesInfo := b.createBuffer(uint32Bytes(meta.valuesInfo), wgpu.BufferUsageStorage)
	defer valuesInfo.Release()
	coordsInfo := b.createBuffer(uint32Bytes(meta.coordsInfo), wgpu.BufferUsageStorage)
	defer coordsInfo.Release()
	outputInfo := b.createBuffer(uint32Bytes(meta.outputInfo), wgpu.BufferUsageStorage)
	defer outputInfo.Release()
	params := b.createUniformBuffer(meta.params())
	defer params.Release()

	bindGroupLayout := k.pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, values.buffer, 0, values.size),
		wgpu.BufferBindingEntry(1, valuesInfo, 0, uint64(4*len(meta.valuesInfo))),
		wgpu.BufferBindingEntry(2, coords.buffer, 0, coords.size),
		wgpu.BufferBindingEntry(3, coordsInfo, 0, uint64(4*len(meta.coordsInfo))),
		wgpu.BufferBindingEntry(4, output.buffer, 0, output.size),
		wgpu.BufferBindingEntry(5, outputInfo, 0, uint64(4*len(meta.outputInfo))),
		wgpu.BufferBindingEntry(6, params, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(k.pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	x, y := launchGrid(meta.n)
	computePass.DispatchWorkgroups(x, y, 1)
	computePass.End()

	b.queueCommand(encoder.Finish(nil))
	klog.V(2).Infof("webgpu: launched %s/%s over %d values (%dx%d workgroups)", module, values.DType(), meta.n, x, y)
	return nil
}
