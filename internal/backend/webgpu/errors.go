package webgpu

import "github.com/pkg/errors"

// Common errors.
var (
	ErrNotAvailable     = errors.New("webgpu: not available")
	ErrOutOfMemory      = errors.New("webgpu: out of memory")
	ErrUnsupportedDType = errors.New("webgpu: unsupported dtype")
	ErrKernelLoad       = errors.New("webgpu: kernel module load failed")
	ErrLaunch           = errors.New("webgpu: kernel launch failed")
)
