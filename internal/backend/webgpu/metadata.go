package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/tensor"
)

// sparseMeta is the shape and stride metadata the from_sparse kernels read
// at runtime, so one compiled module serves every output shape.
type sparseMeta struct {
	n          int
	valuesInfo []uint32 // [extent, stride]
	coordsInfo []uint32 // [e0, e1, s0, s1]
	outputInfo []uint32 // [extents..., strides...]
}

// newSparseMeta describes n values read with valuesStride, coordinates of the
// given shape and strides, and a row-major output of shape out.
func newSparseMeta(n, valuesStride int, coordsShape tensor.Shape, coordsStrides []int, out tensor.Shape) (sparseMeta, error) {
	outStrides := out.ComputeStrides()
	for _, v := range []int{n, valuesStride, out.NumElements()} {
		if uint64(v) > math.MaxUint32 { //nolint:gosec // G115: sizes are non-negative
			return sparseMeta{}, errors.Wrapf(tensor.ErrOutOfBounds, "%d does not fit the kernel's 32-bit indexing", v)
		}
	}
	outputInfo := make([]uint32, 0, 2*len(out))
	for _, e := range out {
		outputInfo = append(outputInfo, uint32(e)) //nolint:gosec // G115: extents bounded by NumElements
	}
	for _, s := range outStrides {
		outputInfo = append(outputInfo, uint32(s)) //nolint:gosec // G115: strides bounded by NumElements
	}
	//nolint:gosec // G115: coordinate extents and strides are bounded by n*D
	return sparseMeta{
		n:          n,
		valuesInfo: []uint32{uint32(n), uint32(valuesStride)},
		coordsInfo: []uint32{
			uint32(coordsShape[0]), uint32(coordsShape[1]),
			uint32(coordsStrides[0]), uint32(coordsStrides[1]),
		},
		outputInfo: outputInfo,
	}, nil
}

// ndims returns the output rank.
func (m sparseMeta) ndims() int {
	return len(m.outputInfo) / 2
}

// params encodes the 16-byte uniform {n, ndims, pad, pad}.
func (m sparseMeta) params() []byte {
	buf := make([]byte, 16)
	putUint32LE(buf[0:4], uint32(m.n))       //nolint:gosec // G115: checked in newSparseMeta
	putUint32LE(buf[4:8], uint32(m.ndims())) //nolint:gosec // G115: rank is small
	return buf
}

// uint32Bytes encodes v little-endian, as WGSL reads storage buffers.
func uint32Bytes(v []uint32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		putUint32LE(buf[4*i:], x)
	}
	return buf
}

func putUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// coordinatesInt32 decodes a host (N, D) int32 or int64 tensor, honoring its
// strides, into a contiguous int32 row-major buffer, the only integer width
// WGSL storage offers.
func coordinatesInt32(coords *tensor.RawTensor) ([]int32, error) {
	rows, err := tensor.NewCoordRows(coords)
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, rows.Len()*rows.Rank())
	for i, row := range rows.All() {
		for d, c := range row {
			if c < math.MinInt32 || c > math.MaxInt32 {
				return nil, errors.Wrapf(tensor.ErrOutOfBounds, "coordinate row %d dimension %d: %d overflows int32", i, d, c)
			}
			out = append(out, int32(c))
		}
	}
	return out, nil
}

// hostBytes returns the logical elements of a host tensor as contiguous
// little-endian bytes for upload.
func hostBytes(raw *tensor.RawTensor) ([]byte, error) {
	if _, err := wgslType(raw.DType()); err != nil {
		return nil, err
	}
	if raw.IsContiguous() {
		return append([]byte(nil), raw.Data()[:raw.ByteSize()]...), nil
	}
	buf := make([]byte, raw.ByteSize())
	switch raw.DType() {
	case tensor.Float32:
		for i, v := range tensor.Values[float32](raw) {
			putUint32LE(buf[4*i:], math.Float32bits(v))
		}
	case tensor.Int32:
		for i, v := range tensor.Values[int32](raw) {
			putUint32LE(buf[4*i:], uint32(v)) //nolint:gosec // G115: bit reinterpretation
		}
	}
	return buf, nil
}

// int32Bytes encodes coordinates for upload.
func int32Bytes(v []int32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		putUint32LE(buf[4*i:], uint32(x)) //nolint:gosec // G115: bit reinterpretation
	}
	return buf
}
