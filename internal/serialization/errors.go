package serialization

import "github.com/pkg/errors"

// Common errors.
var (
	ErrInvalidFormat   = errors.New("invalid safetensors file")
	ErrTensorNotFound  = errors.New("tensor not found")
	ErrUnsupportedType = errors.New("unsupported safetensors dtype")
)
