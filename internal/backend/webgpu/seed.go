//go:build windows

package webgpu

import (
	"github.com/born-ml/sparse/internal/tensor"
)

// SeedOnes fills an output gradient with ones. It is an autodiff.SeedFunc.
func (b *Backend) SeedOnes(grad *DeviceTensor) error {
	return seedWith(grad, func(int) float64 { return 1 })
}

// SeedFlatIndex fills an output gradient with each position's row-major index.
func (b *Backend) SeedFlatIndex(grad *DeviceTensor) error {
	return seedWith(grad, func(pos int) float64 { return float64(pos) })
}

// seedWith fills the gradient on the host and copies it over.
func seedWith(grad *DeviceTensor, f func(pos int) float64) error {
	host, err := tensor.NewRaw(grad.Shape(), grad.DType(), tensor.CPU)
	if err != nil {
		return err
	}
	defer host.Release()
	if err := tensor.FillFloat64(host, f); err != nil {
		return err
	}
	return grad.Write(host)
}
