package webgpu

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/tensor"
)

// Kernel module names. Each module has a single entry point of the same name.
const (
	moduleFromSparseFwd = "from_sparse_fwd"
	moduleFromSparseBwd = "from_sparse_bwd"
)

// workgroupSize is the number of invocations per workgroup for every kernel.
const workgroupSize = 128

// maxWorkgroupsPerDim is the WebGPU default limit on workgroups per dispatch dimension.
const maxWorkgroupsPerDim = 65535

// fromSparseTemplate renders both directions of the sparse-to-dense kernel.
//
// Bindings:
//
//	0 values (or their gradient)        array<T>
//	1 values_info  [extent, stride]     array<u32>
//	2 coords                            array<i32>
//	3 coords_info  [e0, e1, s0, s1]     array<u32>
//	4 output (or its gradient)          array<T>
//	5 output_info  [extents.., strides..] array<u32>
//	6 params       {n, ndims}           uniform
//
// Coordinates outside the output are skipped; the host rejects them first.
var fromSparseTemplate = template.Must(template.New("from_sparse").Parse(`
@group(0) @binding(0) var<storage, {{.ValuesAccess}}> values: array<{{.Type}}>;
@group(0) @binding(1) var<storage, read> values_info: array<u32>;
@group(0) @binding(2) var<storage, read> coords: array<i32>;
@group(0) @binding(3) var<storage, read> coords_info: array<u32>;
@group(0) @binding(4) var<storage, {{.OutputAccess}}> output: array<{{.Type}}>;
@group(0) @binding(5) var<storage, read> output_info: array<u32>;

struct Params {
    n: u32,
    ndims: u32,
    _pad0: u32,
    _pad1: u32,
}
@group(0) @binding(6) var<uniform> params: Params;

// Flat offset of coordinate row i in the output, or -1 if it lies outside.
fn output_offset(i: u32) -> i32 {
    var offset: u32 = 0u;
    for (var d: u32 = 0u; d < params.ndims; d = d + 1u) {
        let c = coords[i * coords_info[2] + d * coords_info[3]];
        if (c < 0 || u32(c) >= output_info[d]) {
            return -1;
        }
        offset = offset + u32(c) * output_info[params.ndims + d];
    }
    return i32(offset);
}

@compute @workgroup_size({{.WorkgroupSize}})
fn {{.Entry}}(
    @builtin(global_invocation_id) gid: vec3<u32>,
    @builtin(num_workgroups) groups: vec3<u32>,
) {
    let i = gid.x + gid.y * groups.x * {{.WorkgroupSize}}u;
    if (i >= params.n) {
        return;
    }
    let offset = output_offset(i);
    if (offset < 0) {
        return;
    }
    let v = i * values_info[1];
{{- if .Backward}}
    values[v] = values[v] + output[u32(offset)];
{{- else}}
    output[u32(offset)] = values[v];
{{- end}}
}
`))

type kernelParams struct {
	Type          string
	Entry         string
	ValuesAccess  string
	OutputAccess  string
	Backward      bool
	WorkgroupSize int
}

// wgslType maps a DataType to its WGSL scalar type.
// Float16 needs the shader-f16 device feature and Float64/Int64 have no WGSL
// storage type, so all three are rejected.
func wgslType(dtype tensor.DataType) (string, error) {
	switch dtype {
	case tensor.Float32:
		return "f32", nil
	case tensor.Int32:
		return "i32", nil
	default:
		return "", errors.Wrapf(ErrUnsupportedDType, "%s has no WGSL storage type on this device", dtype)
	}
}

// kernelSource renders the WGSL source of module for dtype.
func kernelSource(dtype tensor.DataType, module string) (string, error) {
	typ, err := wgslType(dtype)
	if err != nil {
		return "", err
	}
	p := kernelParams{
		Type:          typ,
		Entry:         module,
		WorkgroupSize: workgroupSize,
	}
	switch module {
	case moduleFromSparseFwd:
		p.ValuesAccess, p.OutputAccess = "read", "read_write"
	case moduleFromSparseBwd:
		p.ValuesAccess, p.OutputAccess = "read_write", "read"
		p.Backward = true
	default:
		return "", errors.Wrapf(ErrKernelLoad, "unknown module %q", module)
	}

	var sb strings.Builder
	if err := fromSparseTemplate.Execute(&sb, p); err != nil {
		return "", errors.Wrapf(ErrKernelLoad, "rendering %s/%s: %v", module, dtype, err)
	}
	return sb.String(), nil
}

// launchGrid returns the workgroup counts covering n invocations, one per
// value. Grids wider than the per-dimension limit spill into y.
func launchGrid(n int) (x, y uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroupsPerDim {
		return uint32(groups), 1 //nolint:gosec // G115: bounded by maxWorkgroupsPerDim
	}
	rows := (groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim
	return maxWorkgroupsPerDim, uint32(rows) //nolint:gosec // G115: bounded by groups
}
