package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/tensor"
)

func TestKernelSourceForward(t *testing.T) {
	src, err := kernelSource(tensor.Float32, moduleFromSparseFwd)
	require.NoError(t, err)
	assert.Contains(t, src, "var<storage, read> values: array<f32>")
	assert.Contains(t, src, "var<storage, read_write> output: array<f32>")
	assert.Contains(t, src, "@compute @workgroup_size(128)")
	assert.Contains(t, src, "fn from_sparse_fwd(")
	assert.Contains(t, src, "output[u32(offset)] = values[v];")
	assert.NotContains(t, src, "values[v] + output")
}

func TestKernelSourceBackward(t *testing.T) {
	src, err := kernelSource(tensor.Int32, moduleFromSparseBwd)
	require.NoError(t, err)
	assert.Contains(t, src, "var<storage, read_write> values: array<i32>")
	assert.Contains(t, src, "var<storage, read> output: array<i32>")
	assert.Contains(t, src, "fn from_sparse_bwd(")
	assert.Contains(t, src, "values[v] = values[v] + output[u32(offset)];")
	// Both directions share the bounds-checked decoder.
	assert.Contains(t, src, "fn output_offset(i: u32) -> i32")
}

func TestKernelSourceRejects(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float16, tensor.Float64, tensor.Int64} {
		_, err := kernelSource(dt, moduleFromSparseFwd)
		assert.ErrorIs(t, err, ErrUnsupportedDType, dt.String())
	}
	_, err := kernelSource(tensor.Float32, "nope")
	assert.ErrorIs(t, err, ErrKernelLoad)
}

func TestLaunchGrid(t *testing.T) {
	tests := []struct {
		n    int
		x, y uint32
	}{
		{1, 1, 1},
		{5, 1, 1},
		{128, 1, 1},
		{129, 2, 1},
		{1000, 8, 1},
		{maxWorkgroupsPerDim * workgroupSize, maxWorkgroupsPerDim, 1},
		{maxWorkgroupsPerDim*workgroupSize + 1, maxWorkgroupsPerDim, 2},
	}
	for _, tt := range tests {
		x, y := launchGrid(tt.n)
		assert.Equal(t, tt.x, x, "n=%d", tt.n)
		assert.Equal(t, tt.y, y, "n=%d", tt.n)
		assert.GreaterOrEqual(t, int(x)*int(y)*workgroupSize, tt.n)
	}
}
