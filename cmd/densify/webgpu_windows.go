//go:build windows

package main

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/autodiff"
	"github.com/born-ml/sparse/backend/webgpu"
)

func densifyWebGPU(in *sparseInput, opts runOptions) (out *denseOutput, err error) {
	gpu, err := webgpu.New(webgpu.WithMemoryLimit(opts.memoryLimit))
	if err != nil {
		return nil, errors.Wrap(err, "densify")
	}
	defer gpu.Release()

	values, err := gpu.Upload(in.values)
	if err != nil {
		return nil, err
	}
	defer values.Release()
	defer recoverOp(&err)

	traced := autodiff.Constant(values)
	if opts.grad {
		traced = autodiff.Trace(values, gpu)
	}
	dense := gpu.FromSparse(traced, in.coords, in.shape)
	defer dense.Value().Release()

	out = &denseOutput{}
	if out.dense, err = dense.Value().ToHost(); err != nil {
		return nil, err
	}
	if !opts.grad {
		return out, nil
	}

	grads, err := autodiff.Backward(dense, gpu.SeedFlatIndex)
	if err != nil {
		out.Release()
		return nil, err
	}
	defer grads.Release()
	gv, err := grads.Get(values.Ghost())
	if err == nil {
		out.gradValues, err = gv.ToHost()
	}
	if err != nil {
		out.Release()
		return nil, err
	}
	klog.V(2).Infof("densify: webgpu memory %+v", gpu.MemoryStats())
	return out, nil
}
