package cpu

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/sparse/internal/parallel"
	"github.com/born-ml/sparse/internal/tensor"
)

type number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// scatterInto writes values[i] to out at offsets[i], in order.
// Later writes to the same offset overwrite earlier ones.
//
//nolint:cyclop // Type-specific dispatch for scatter (5 dtypes)
func scatterInto(out, values *tensor.RawTensor, offsets []int) {
	stride := values.Strides()[0]
	switch values.DType() {
	case tensor.Float32:
		scatter(out.AsFloat32(), values.AsFloat32(), stride, offsets)
	case tensor.Float64:
		scatter(out.AsFloat64(), values.AsFloat64(), stride, offsets)
	case tensor.Float16:
		scatter(out.AsFloat16(), values.AsFloat16(), stride, offsets)
	case tensor.Int32:
		scatter(out.AsInt32(), values.AsInt32(), stride, offsets)
	case tensor.Int64:
		scatter(out.AsInt64(), values.AsInt64(), stride, offsets)
	default:
		panic(fmt.Sprintf("from_sparse: unsupported dtype %s", values.DType()))
	}
}

// scatter copies src (read with srcStride) into dst at offsets.
func scatter[T tensor.DType](dst, src []T, srcStride int, offsets []int) {
	for i, off := range offsets {
		dst[off] = src[i*srcStride]
	}
}

// gatherAccumulateInto adds gradOutput[offsets[i]] to gradValues[i] for every i.
// Both gradients are contiguous. Chunks of i are accumulated concurrently per cfg.
//
//nolint:cyclop // Type-specific dispatch for gather (5 dtypes)
func gatherAccumulateInto(gradValues, gradOutput *tensor.RawTensor, offsets []int, cfg parallel.Config) error {
	if gradValues.DType() != gradOutput.DType() {
		return errors.Errorf("gradient dtypes differ: %s vs %s", gradValues.DType(), gradOutput.DType())
	}
	switch gradValues.DType() {
	case tensor.Float32:
		gatherAccumulate(gradValues.AsFloat32(), gradOutput.AsFloat32(), offsets, cfg)
	case tensor.Float64:
		gatherAccumulate(gradValues.AsFloat64(), gradOutput.AsFloat64(), offsets, cfg)
	case tensor.Float16:
		gatherAccumulateHalf(gradValues.AsFloat16(), gradOutput.AsFloat16(), offsets, cfg)
	case tensor.Int32:
		gatherAccumulate(gradValues.AsInt32(), gradOutput.AsInt32(), offsets, cfg)
	case tensor.Int64:
		gatherAccumulate(gradValues.AsInt64(), gradOutput.AsInt64(), offsets, cfg)
	default:
		return errors.Errorf("unsupported dtype %s", gradValues.DType())
	}
	return nil
}

func gatherAccumulate[T number](dst, src []T, offsets []int, cfg parallel.Config) {
	parallel.ForRange(len(offsets), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			dst[i] += src[offsets[i]]
		}
	}, cfg)
}

// gatherAccumulateHalf accumulates in float32 and rounds once per element.
func gatherAccumulateHalf(dst, src []float16.Float16, offsets []int, cfg parallel.Config) {
	parallel.ForRange(len(offsets), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			dst[i] = float16.Fromfloat32(dst[i].Float32() + src[offsets[i]].Float32())
		}
	}, cfg)
}
