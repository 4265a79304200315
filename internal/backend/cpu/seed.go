package cpu

import (
	"github.com/born-ml/sparse/internal/tensor"
)

// SeedOnes fills an output gradient with ones (d out / d out).
// It is an autodiff.SeedFunc.
func (cpu *CPUBackend) SeedOnes(grad *tensor.RawTensor) error {
	return tensor.FillFloat64(grad, func(int) float64 { return 1 })
}

// SeedFlatIndex fills an output gradient with each position's row-major
// index, so a recovered value gradient names the position it was read from.
func (cpu *CPUBackend) SeedFlatIndex(grad *tensor.RawTensor) error {
	return tensor.FillFloat64(grad, func(pos int) float64 { return float64(pos) })
}
